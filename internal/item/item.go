package item

import (
	"context"
	"errors"
	"time"
)

// ErrNotSeriesItem marks a file that is not part of any series, such as a
// non-DICOM file dropped into a DICOM feed. Callers skip these files.
var ErrNotSeriesItem = errors.New("item: not a series item")

// Meta holds the fields a series key can be rendered from.
type Meta struct {
	PatientID         string
	StudyDate         string
	StudyID           string
	StudyInstanceUID  string
	SeriesInstanceUID string
	SeriesNumber      string
	SeriesDescription string
	// InstanceNumber orders items within a series. It is informational only.
	InstanceNumber string
	// Directory is the parent directory of the file relative to the source root.
	Directory string
}

// Item is one file belonging to a series.
type Item struct {
	Path    string
	Size    int64
	ModTime time.Time
	Meta    Meta
}

// Decoder reads one file into an Item.
type Decoder interface {
	Decode(ctx context.Context, path string) (Item, error)
}
