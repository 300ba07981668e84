// Package bundle is the build pipeline used by the development loop. It
// defines the Pipeline contract the orchestrator drives, a static bundler
// that runs an optional external build command and stages the project into
// a per-vendor output directory, and the file watcher that batches source
// changes for incremental rebuilds.
package bundle
