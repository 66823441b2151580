package engine

import "syscall"

// Killer terminates a supervised process unconditionally and
// uncatchably on a policy violation (§4.3 observe, §7). It is an
// interface because the actual termination mechanism is host-specific:
// the original kernel module calls send_sig(SIGKILL, ...) from kprobe
// context; a userspace supervisor (cmd/sandboxd) instead signals the pid
// directly. Tests substitute a recording fake.
type Killer interface {
	Kill(pid uint32) error
}

// OSKiller kills a process via the host OS's signal delivery, the
// userspace equivalent of the kernel module's send_sig(SIGKILL, ...).
type OSKiller struct{}

// Kill sends an unconditional, uncatchable SIGKILL to pid.
func (OSKiller) Kill(pid uint32) error {
	return syscall.Kill(int(pid), syscall.SIGKILL)
}
