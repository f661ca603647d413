package region

import "github.com/outofforest/albireo/errs"

// Iterator is a one-shot value that walks a decoded region array,
// enforcing for each expected region: kind, instance, exact offset, and
// optionally an exact block count. On the first mismatch it records
// errs.UnexpectedResult and stops recording further diagnostics, but
// continues to let the caller drain the remaining regions so that exactly
// one diagnostic, the first one, is reported.
type Iterator struct {
	regions       []Region
	idx           int
	expectedBlock uint64
	err           error
}

// NewIterator returns an Iterator over regions, expecting the first one
// to begin at startBlock.
func NewIterator(regions []Region, startBlock uint64) *Iterator {
	return &Iterator{regions: regions, expectedBlock: startBlock}
}

// Done reports whether every region has been consumed.
func (it *Iterator) Done() bool {
	return it.idx >= len(it.regions)
}

// Remaining returns the number of regions not yet consumed.
func (it *Iterator) Remaining() int {
	return len(it.regions) - it.idx
}

// Peek returns the next region without consuming it.
func (it *Iterator) Peek() (Region, bool) {
	if it.Done() {
		return Region{}, false
	}
	return it.regions[it.idx], true
}

// Expect consumes the next region, asserting it matches kind and (when
// instance is non-nil) instance, that it starts exactly where the
// previous region ended, and, if exactBlocks is non-nil, that its length
// matches exactly. Pass instance = nil to skip the instance check. The
// returned Region is always the raw decoded value; callers should not
// trust its fields when Err() is non-nil.
func (it *Iterator) Expect(kind Kind, instance *uint16, exactBlocks *uint64) Region {
	r, ok := it.take()
	if !ok {
		it.fail(errs.Wrapf(errs.UnexpectedResult, "region iterator: expected %s but no regions remain", kind))
		return Region{}
	}

	if r.Kind != kind {
		it.fail(errs.Wrapf(errs.UnexpectedResult, "region iterator: expected kind %s, got %s", kind, r.Kind))
	}
	if instance != nil && r.Instance != *instance {
		it.fail(errs.Wrapf(errs.UnexpectedResult, "region iterator: expected instance %d for %s, got %d", *instance, kind, r.Instance))
	}
	if r.StartBlock != it.expectedBlock {
		it.fail(errs.Wrapf(errs.UnexpectedResult, "region iterator: expected %s at block %d, got block %d", kind, it.expectedBlock, r.StartBlock))
	}
	if exactBlocks != nil && r.NumBlocks != *exactBlocks {
		it.fail(errs.Wrapf(errs.UnexpectedResult, "region iterator: expected %s to span %d blocks, got %d", kind, *exactBlocks, r.NumBlocks))
	}

	it.expectedBlock = r.EndBlock()
	return r
}

func (it *Iterator) take() (Region, bool) {
	if it.Done() {
		return Region{}, false
	}
	r := it.regions[it.idx]
	it.idx++
	return r, true
}

func (it *Iterator) fail(err error) {
	if it.err == nil {
		it.err = err
	}
}

// Err returns the first diagnostic recorded, or nil if every Expect call
// succeeded.
func (it *Iterator) Err() error {
	return it.err
}

// EndBlock returns the block offset just past the last region consumed so
// far (the running expected_block cursor).
func (it *Iterator) EndBlock() uint64 {
	return it.expectedBlock
}

// Inst is a small convenience for building the *uint16 instance arguments
// Expect takes, so call sites can write region.Inst(0) instead of taking
// the address of a local variable.
func Inst(v uint16) *uint16 {
	return &v
}
