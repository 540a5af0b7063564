package watcher

import "time"

// EventType represents the type of file system event
type EventType int

const (
	// EventAdded is emitted when a file is seen for the first time, including
	// files that already exist when their directory is watched.
	EventAdded EventType = iota
	// EventChanged is emitted when a known file is written (after settling)
	EventChanged
	// EventRemoved is emitted when a known file is deleted or moved away
	EventRemoved
	// EventDirAdded is emitted when a directory starts being watched
	EventDirAdded
	// EventDirRemoved is emitted when a watched directory disappears
	EventDirRemoved
)

// String returns the string representation of the event type
func (t EventType) String() string {
	switch t {
	case EventAdded:
		return "add"
	case EventChanged:
		return "change"
	case EventRemoved:
		return "unlink"
	case EventDirAdded:
		return "addDir"
	case EventDirRemoved:
		return "unlinkDir"
	default:
		return "unknown"
	}
}

// IsDir reports whether the event concerns a directory.
func (t EventType) IsDir() bool {
	return t == EventDirAdded || t == EventDirRemoved
}

// Event represents a file system event
type Event struct {
	// ModTime is the file's last modification time (zero for removals)
	ModTime time.Time

	// Path is the absolute path of the file or directory
	Path string

	// Type is the kind of event
	Type EventType

	// Size is the file size in bytes (zero for removals and directories)
	Size int64
}
