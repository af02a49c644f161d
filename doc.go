// Package asynccall wires the shared-region allocator, ring layout,
// and executor into the setup/teardown surface a process uses to open
// an async-call channel to the kernel: SetupAsyncCall maps a region,
// lays out a submission and completion ring inside it, and starts the
// executor draining it; Teardown stops the executor and reclaims the
// region.
package asynccall
