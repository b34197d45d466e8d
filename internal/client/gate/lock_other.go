//go:build !unix

package gate

import "os"

// Without flock, only the in-process mutex protects the file.

func lockShared(*os.File) error { return nil }

func lockExclusive(*os.File) error { return nil }

func unlock(*os.File) error { return nil }
