//go:build linux

// Package faultsig is the fault-capturing half of the access-protection
// subsystem (spec component E). A SIGSEGV handler installed once at
// startup (the original's protection_handler in
// src/include/interval_test.hpp) records every page-aligned address
// touched while protected, then restores access so the faulting
// instruction re-executes and the mutator never observes the fault.
//
// Recording and restoring access must happen from inside the signal
// handler itself (invariant H1: no allocation, no mutex, async-signal-
// safe), which is why the handler and its ring buffer are implemented in
// C via cgo rather than in Go: Go's runtime reserves synchronous fault
// signals for its own use and does not let user code resume the faulting
// instruction after handling a SIGSEGV delivered to an arbitrary mutator
// goroutine. The C side below does only pointer arithmetic, an atomic
// increment, and a mprotect(2) syscall — no libc allocation, no locks —
// and the Go side only ever polls the ring between intervals, never from
// signal context.
package faultsig

/*
#include <signal.h>
#include <stdint.h>
#include <string.h>
#include <sys/mman.h>
#include <unistd.h>

#define HEAPPULSE_RING_CAP 4096

static uint64_t heappulse_ring[HEAPPULSE_RING_CAP];
static volatile long heappulse_ring_head = 0; // next free slot, monotonic
static volatile long heappulse_ring_drops = 0;

static void heappulse_sigsegv_handler(int sig, siginfo_t *si, void *unused) {
	long page_size = sysconf(_SC_PAGESIZE);
	uintptr_t aligned = ((uintptr_t)si->si_addr) & ~(uintptr_t)(page_size - 1);

	long slot = __sync_fetch_and_add(&heappulse_ring_head, 1);
	if (slot < HEAPPULSE_RING_CAP) {
		heappulse_ring[slot] = (uint64_t)aligned;
	} else {
		__sync_fetch_and_add(&heappulse_ring_drops, 1);
	}

	mprotect((void *)aligned, (size_t)page_size, PROT_READ | PROT_WRITE | PROT_EXEC);
}

static int heappulse_install_handler(void) {
	stack_t ss;
	ss.ss_sp = malloc(SIGSTKSZ);
	if (ss.ss_sp == NULL) {
		return -1;
	}
	ss.ss_size = SIGSTKSZ;
	ss.ss_flags = 0;
	if (sigaltstack(&ss, NULL) != 0) {
		return -1;
	}

	struct sigaction sa;
	memset(&sa, 0, sizeof(sa));
	sa.sa_sigaction = heappulse_sigsegv_handler;
	sa.sa_flags = SA_SIGINFO | SA_ONSTACK | SA_RESTART;
	sigemptyset(&sa.sa_mask);
	return sigaction(SIGSEGV, &sa, NULL);
}

// heappulse_drain copies up to cap entries out of the ring into out and
// resets the ring, returning the number copied. Called only between
// intervals, never from signal context, so it is free to use a plain
// (non-atomic) reset of the head once the racing window is closed by the
// caller having already stopped protecting new pages.
static long heappulse_drain(uint64_t *out, long cap) {
	long head = heappulse_ring_head;
	if (head > HEAPPULSE_RING_CAP) {
		head = HEAPPULSE_RING_CAP;
	}
	long n = head < cap ? head : cap;
	for (long i = 0; i < n; i++) {
		out[i] = heappulse_ring[i];
	}
	heappulse_ring_head = 0;
	heappulse_ring_drops = 0;
	return n;
}

static long heappulse_drops(void) {
	return heappulse_ring_drops;
}
*/
import "C"

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/adam-mcdaniel/heappulse/internal/fixed"
)

// Capacity is the fault ring's fixed size, matching the original's
// StackSet<void*, 1000> sized up for the larger default interval period
// this edition supports.
const Capacity = int(C.HEAPPULSE_RING_CAP)

var installOnce sync.Once
var installErr error

// Install registers the SIGSEGV handler once per process. Safe to call
// more than once; only the first call has effect.
func Install() error {
	installOnce.Do(func() {
		if rc := C.heappulse_install_handler(); rc != 0 {
			installErr = errors.New("faultsig: sigaction(SIGSEGV) failed")
		}
	})
	return installErr
}

// Drain copies every address accumulated since the last Drain into a
// fresh fixed-capacity Set and resets the ring. Must be called from the
// interval pass (the working thread), never concurrently with another
// Drain.
func Drain() (*fixed.Set[uintptr], int) {
	buf := make([]C.uint64_t, Capacity)
	// Read the drop counter before heappulse_drain resets it.
	dropped := int(C.heappulse_drops())
	n := C.heappulse_drain(&buf[0], C.long(Capacity))

	set := fixed.NewSet[uintptr](Capacity)
	for i := 0; i < int(n); i++ {
		set.Insert(uintptr(buf[i]))
	}
	return set, dropped
}
