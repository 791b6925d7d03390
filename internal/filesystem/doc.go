/*
Package filesystem provides the file operations the refiner depends on when
it touches the uploads tree.

# Stale handles

StatWithRetry and OpenWithRetry wrap os.Stat and os.Open with exponential
backoff for ESTALE (errno 116), which NFS-backed upload volumes return
transiently. Other errors are passed through on the first attempt.

	info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())

# Bounded deletion

A Deleter removes files with a fixed number of unlink attempts and a fixed
backoff between them. Before each attempt it checks write access and tries
chmod remediation for read-only files, giving up after two failed
remediations.

	d := filesystem.NewDeleter(filesystem.DefaultDeleteConfig())
	if err := d.Delete(path); err != nil {
	    // ErrWriteDenied or ErrDeleteExhausted; already logged
	}

# Metrics

The package reports through an Observer installed with SetObserver. Until
one is installed all observations are dropped. Volume labels come from the
VolumeResolver set with SetDefaultVolumeResolver.
*/
package filesystem
