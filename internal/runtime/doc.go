// Package runtime manages stage containers backed by containerd.
//
// A [Runtime] connects to a containerd daemon and provides image import
// and container creation. OCI archives are imported, tagged with a
// deterministic content hash, unpacked for the target platform, and used
// to create containers with overlayfs snapshots.
//
// Each [Container] wraps a running containerd task. Commands can be
// executed inside the container (optionally as an unprivileged uid),
// files can be copied in as tar streams, and the final filesystem state
// can be committed as a tagged image for child stages to extend, or
// exported as an OCI archive with the stage's user, entrypoint, default
// args, volumes, and working directory applied to the image config.
// Committed images are immutable and content-addressed: stages started
// from the same tag get independent copy-on-write snapshots.
//
// Example usage:
//
//	rt, err := runtime.New("/run/containerd/containerd.sock", "emberd")
//	if err != nil {
//	    return err
//	}
//	defer rt.Close()
//
//	ctr, err := rt.StartContainer(ctx, "pytorch.tar", "build-base", "linux/amd64")
//	if err != nil {
//	    return err
//	}
//	defer ctr.Destroy(ctx)
//
//	result, err := ctr.Exec(ctx, "pip install -e .", runtime.ExecOpts{Workdir: "/app"})
//	if err != nil {
//	    return err
//	}
//
//	if _, err := ctr.Commit(ctx, "stage/base", nil); err != nil {
//	    return err
//	}
package runtime
