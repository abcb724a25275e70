package item

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

const dicomMIME = "application/dicom"

// DICOMDecoder reads DICOM headers, skipping pixel data.
type DICOMDecoder struct {
	root string
}

// NewDICOMDecoder returns a decoder for files under root. Root is used to
// fill Meta.Directory and may be empty.
func NewDICOMDecoder(root string) *DICOMDecoder {
	return &DICOMDecoder{root: root}
}

func (d *DICOMDecoder) Decode(ctx context.Context, path string) (Item, error) {
	if err := ctx.Err(); err != nil {
		return Item{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return Item{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return Item{}, fmt.Errorf("%w: %s is a directory", ErrNotSeriesItem, path)
	}

	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return Item{}, fmt.Errorf("detect type of %s: %w", path, err)
	}
	if !mtype.Is(dicomMIME) {
		return Item{}, fmt.Errorf("%w: %s is %s", ErrNotSeriesItem, path, mtype.String())
	}

	ds, err := dicom.ParseFile(path, nil, dicom.SkipPixelData())
	if err != nil {
		return Item{}, fmt.Errorf("%w: parse %s: %v", ErrNotSeriesItem, path, err)
	}

	meta := Meta{
		PatientID:         elementString(ds, tag.PatientID),
		StudyDate:         elementString(ds, tag.StudyDate),
		StudyID:           elementString(ds, tag.StudyID),
		StudyInstanceUID:  elementString(ds, tag.StudyInstanceUID),
		SeriesInstanceUID: elementString(ds, tag.SeriesInstanceUID),
		SeriesNumber:      elementString(ds, tag.SeriesNumber),
		SeriesDescription: elementString(ds, tag.SeriesDescription),
		InstanceNumber:    elementString(ds, tag.InstanceNumber),
		Directory:         relativeDir(d.root, path),
	}

	return Item{
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		Meta:    meta,
	}, nil
}

// elementString returns the first value of t, or "" when it is absent.
func elementString(ds dicom.Dataset, t tag.Tag) string {
	elem, err := ds.FindElementByTag(t)
	if err != nil || elem == nil || elem.Value == nil {
		return ""
	}
	switch elem.Value.ValueType() {
	case dicom.Strings:
		values := dicom.MustGetStrings(elem.Value)
		if len(values) == 0 {
			return ""
		}
		return strings.TrimSpace(strings.TrimRight(values[0], "\x00"))
	case dicom.Ints:
		values := dicom.MustGetInts(elem.Value)
		if len(values) == 0 {
			return ""
		}
		return strconv.Itoa(values[0])
	default:
		return strings.Trim(strings.TrimSpace(elem.Value.String()), "[]")
	}
}

func relativeDir(root, path string) string {
	dir := filepath.Dir(path)
	if root == "" {
		return filepath.ToSlash(dir)
	}
	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return ""
	}
	return filepath.ToSlash(rel)
}
