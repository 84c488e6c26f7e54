package physmem

import (
	"github.com/cockroachdb/errors"
	"github.com/corekernel/hvmem/layout"
)

// ClaimFrame pops a free frame, translates it into the upper kernel window and hands both
// addresses to init. If init fails, the frame is pushed back before the error is returned.
// A nil init claims the frame unconditionally.
func ClaimFrame(stack FrameStack, upperBase layout.VirtAddr, init func(phys layout.PhysAddr, virt layout.VirtAddr) error) (layout.PhysAddr, layout.VirtAddr, error) {
	phys, err := stack.Pop()
	if err != nil {
		return 0, 0, errors.Wrap(err, "claiming a physical frame")
	}

	virt := layout.VirtAddr(phys) + upperBase
	if init == nil {
		return phys, virt, nil
	}

	err = init(phys, virt)
	if err != nil {
		pushErr := stack.Push(phys)
		if pushErr != nil {
			return 0, 0, errors.CombineErrors(err, errors.Wrapf(pushErr, "returning frame 0x%x to the stack", phys))
		}
		return 0, 0, err
	}

	return phys, virt, nil
}
