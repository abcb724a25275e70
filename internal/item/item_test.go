package item_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"seriesd/internal/item"
)

func writeDICOM(t *testing.T, path string, studyDate, studyID, seriesNumber string) {
	t.Helper()
	ds := dicom.Dataset{Elements: []*dicom.Element{
		mustNewElement(tag.MediaStorageSOPClassUID, []string{"1.2.840.10008.5.1.4.1.1.4"}),
		mustNewElement(tag.MediaStorageSOPInstanceUID, []string{"1.2.3.4.5.6"}),
		mustNewElement(tag.TransferSyntaxUID, []string{"1.2.840.10008.1.2.1"}),
		mustNewElement(tag.PatientID, []string{"P001"}),
		mustNewElement(tag.StudyDate, []string{studyDate}),
		mustNewElement(tag.StudyID, []string{studyID}),
		mustNewElement(tag.SeriesNumber, []string{seriesNumber}),
		mustNewElement(tag.SeriesDescription, []string{"T1 MPRAGE"}),
		mustNewElement(tag.InstanceNumber, []string{"12"}),
	}}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create dicom: %v", err)
	}
	defer f.Close()
	if err := dicom.Write(f, ds); err != nil {
		t.Fatalf("write dicom: %v", err)
	}
}

func TestDICOMDecoderReadsHeaders(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "scanner", "img0001.dcm")
	writeDICOM(t, path, "20240101", "7", "3")

	got, err := item.NewDICOMDecoder(root).Decode(context.Background(), path)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := item.Meta{
		PatientID:         "P001",
		StudyDate:         "20240101",
		StudyID:           "7",
		SeriesNumber:      "3",
		SeriesDescription: "T1 MPRAGE",
		InstanceNumber:    "12",
		Directory:         "scanner",
	}
	if got.Meta != want {
		t.Fatalf("unexpected meta:\n got %+v\nwant %+v", got.Meta, want)
	}
	if got.Path != path || got.Size == 0 || got.ModTime.IsZero() {
		t.Fatalf("unexpected file info %+v", got)
	}
}

func TestDICOMDecoderRejectsOtherFiles(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "notes.txt")
	if err := os.WriteFile(path, []byte("not an image\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := item.NewDICOMDecoder(root).Decode(context.Background(), path)
	if !errors.Is(err, item.ErrNotSeriesItem) {
		t.Fatalf("expected ErrNotSeriesItem, got %v", err)
	}
}

func TestDICOMDecoderMissingFile(t *testing.T) {
	_, err := item.NewDICOMDecoder("").Decode(context.Background(), filepath.Join(t.TempDir(), "gone.dcm"))
	if err == nil || errors.Is(err, item.ErrNotSeriesItem) {
		t.Fatalf("expected a stat error, got %v", err)
	}
}

func TestDirectoryDecoder(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "study1", "series2", "a.bin")
	top := filepath.Join(root, "stray.bin")
	for _, p := range []string{nested, top} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	dec := item.NewDirectoryDecoder(root)
	got, err := dec.Decode(context.Background(), nested)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Meta.Directory != "study1/series2" {
		t.Fatalf("unexpected directory %q", got.Meta.Directory)
	}
	if _, err := dec.Decode(context.Background(), top); !errors.Is(err, item.ErrNotSeriesItem) {
		t.Fatalf("expected root-level file to be rejected, got %v", err)
	}
	if _, err := dec.Decode(context.Background(), filepath.Join(root, "study1")); !errors.Is(err, item.ErrNotSeriesItem) {
		t.Fatalf("expected directory to be rejected, got %v", err)
	}
}

func TestDecodeHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := item.NewDirectoryDecoder("").Decode(ctx, "/whatever"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

// mustNewElement wraps dicom.NewElement; the library has no exported Must variant.
func mustNewElement(t tag.Tag, data interface{}) *dicom.Element {
	e, err := dicom.NewElement(t, data)
	if err != nil {
		panic(err)
	}
	return e
}
