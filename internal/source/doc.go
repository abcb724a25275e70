// Package source finds the files that feed the series registry.
//
// Walker performs a one-shot concurrent scan of a directory tree. Watcher
// follows a tree with fsnotify and hands over each file once it has stopped
// changing. Both apply the same Filter and report paths through a Sink.
package source
