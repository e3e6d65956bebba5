// Package lock provides a cooperative mutual-exclusion primitive for
// serializing tasks on a named resource. Each Lock grants its holder
// exclusive execution of a task body; contenders queue in FIFO order and
// wait with a bounded budget. Acquiring several locks at once always
// follows lexicographic name order, which rules out circular waits.
package lock
