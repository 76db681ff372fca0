// Package wgpu registers a GPU compute backend built on wgpu/hal. Importing
// the package for side effects is enough; the backend claims the "wgpu"
// slot in the registry and reports unavailable when no usable adapter
// exists. Build with the nogpu tag to drop the native dependency entirely.
package wgpu
