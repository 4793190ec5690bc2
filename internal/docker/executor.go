// Package docker implements the executor contract of spec §4.5: the thin
// abstraction the run loop drives, and a concrete implementation that
// invokes the configured container CLI binary as a subprocess (spec §6's
// "Container CLI subprocess contract"), the same way the teacher's
// OSCommand shells out to `docker` rather than linking against a daemon
// SDK.
package docker

import (
	"context"
	"io"
)

// CreateOptions is everything the run loop's "create container" phase
// needs to hand to the executor (spec §4.6 phase 4).
type CreateOptions struct {
	ImageRef    string
	Command     string // run as `su -c Command User`, per spec §4.6 phase 6
	Environment map[string]string
	Mounts      []Mount
	Ports       []PortBinding
	User        string
	WorkingDir  string
	ExtraArgs   []string
}

// Mount is a host:container bind mount.
type Mount struct {
	HostPath      string
	ContainerPath string
	ReadOnly      bool
}

// PortBinding is a host:container port mapping.
type PortBinding struct {
	HostPort      string
	ContainerPort string
}

// Executor is the capability-set abstraction spec §9 calls out as the
// only polymorphism worth preserving in the engine: swap in a test
// double that records calls and returns scripted results, with no
// daemon required.
type Executor interface {
	ImageExistsLocal(ctx context.Context, ref string) (bool, error)
	ImageExistsRemote(ctx context.Context, ref string) (bool, error)
	Pull(ctx context.Context, ref string) error
	Push(ctx context.Context, ref string) error
	Tag(ctx context.Context, srcRef, dstRef string) error
	DeleteLocal(ctx context.Context, ref string) error

	Create(ctx context.Context, opts CreateOptions) (containerID string, err error)
	Start(ctx context.Context, containerID string) error
	CopyIn(ctx context.Context, containerID string, tarStream io.Reader, dstDir string) error
	CopyOut(ctx context.Context, containerID string, srcPath string) (io.ReadCloser, error)
	Run(ctx context.Context, containerID string, stdout, stderr io.Writer) (exitCode int64, err error)
	Stop(ctx context.Context, containerID string) error
	Commit(ctx context.Context, containerID string, ref string) error
	Remove(ctx context.Context, containerID string) error
}
