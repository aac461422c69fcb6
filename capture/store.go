package capture

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/swdee/go-motionwatch/render"
	"gocv.io/x/gocv"
)

const (
	// NameLayout is the time layout of a capture file name without extension
	NameLayout = "Mon-02-Jan-2006_03-04-05PM"
	// Ext is the capture file extension
	Ext = ".jpg"
	// DateLayout and TimeLayout format a capture's timestamp for display
	DateLayout = "Mon 02 Jan 2006"
	TimeLayout = "03:04:05 PM"

	// DefaultMaxFiles is the number of captures kept before the oldest are
	// removed
	DefaultMaxFiles = 30
	// DefaultPageSize is the number of captures per page
	DefaultPageSize = 12
)

var (
	// ErrNotFound is returned when a named capture does not exist
	ErrNotFound = errors.New("capture not found")
	// ErrInvalidName is returned for names that are not capture file names
	ErrInvalidName = errors.New("invalid capture name")
)

// captureNamespace seeds the name based capture ids
var captureNamespace = uuid.MustParse("4f1c2f38-9d77-4e43-8f0e-2f8a6a0d51c7")

// Sink persists a frame that raised an alert
type Sink interface {
	Save(ctx context.Context, frame gocv.Mat, at time.Time) (Capture, error)
}

// Capture describes a stored capture file
type Capture struct {
	// ID is stable for a given file name
	ID   string `json:"id"`
	Name string `json:"name"`
	// Date and Time are the capture timestamp formatted for display
	Date  string    `json:"date"`
	Time  string    `json:"time"`
	Taken time.Time `json:"taken"`
	Size  int64     `json:"size"`
}

// Order is the sort order of a capture listing
type Order int

const (
	// Newest lists the most recent capture first
	Newest Order = iota
	// Oldest lists the earliest capture first
	Oldest
)

// ParseOrder converts "newest" or "oldest" into an Order, anything else is
// Newest
func ParseOrder(s string) Order {
	if strings.EqualFold(s, "oldest") {
		return Oldest
	}
	return Newest
}

// String returns the name of the order
func (o Order) String() string {
	if o == Oldest {
		return "oldest"
	}
	return "newest"
}

// Toggle returns the opposite order
func (o Order) Toggle() Order {
	if o == Oldest {
		return Newest
	}
	return Oldest
}

// Page is one page of a capture listing
type Page struct {
	Captures   []Capture `json:"captures"`
	Page       int       `json:"page"`
	TotalPages int       `json:"total_pages"`
	Total      int       `json:"total"`
	Order      string    `json:"order"`
}

// Status summarizes the stored captures
type Status struct {
	Count int `json:"count"`
	// Last is the most recent capture, nil when there are none
	Last *Capture `json:"last,omitempty"`
}

// DiskStore keeps captures as JPEG files in a single directory
type DiskStore struct {
	dir      string
	maxFiles int
	quality  int
	// mu serializes writes, deletes and retention
	mu sync.Mutex
}

// NewDiskStore returns a store writing to dir.  The directory is created on
// first save
func NewDiskStore(dir string, maxFiles, quality int) *DiskStore {

	if maxFiles <= 0 {
		maxFiles = DefaultMaxFiles
	}

	if quality <= 0 || quality > 100 {
		quality = render.DefaultJPEGQuality
	}

	return &DiskStore{
		dir:      dir,
		maxFiles: maxFiles,
		quality:  quality,
	}
}

// Dir returns the capture directory
func (d *DiskStore) Dir() string {
	return d.dir
}

// FileName returns the file name a capture taken at t is stored under.  Two
// captures within the same second share a name and the later one replaces
// the earlier
func FileName(t time.Time) string {
	return t.Format(NameLayout) + Ext
}

// Save encodes the frame as a JPEG and writes it
func (d *DiskStore) Save(ctx context.Context, frame gocv.Mat, at time.Time) (Capture, error) {

	if err := ctx.Err(); err != nil {
		return Capture{}, err
	}

	data, err := render.EncodeJPEG(frame, d.quality)

	if err != nil {
		return Capture{}, err
	}

	return d.Write(data, at)
}

// Write stores already encoded JPEG data as the capture taken at the given
// time, then removes the oldest captures beyond the retention limit
func (d *DiskStore) Write(data []byte, at time.Time) (Capture, error) {

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return Capture{}, fmt.Errorf("failed to create capture directory: %w", err)
	}

	name := FileName(at)
	path := filepath.Join(d.dir, name)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Capture{}, fmt.Errorf("failed to write capture %s: %w", name, err)
	}

	if err := d.retain(); err != nil {
		return Capture{}, err
	}

	return newCapture(name, at.Truncate(time.Second), int64(len(data))), nil
}

// retain deletes the oldest captures until at most maxFiles remain
func (d *DiskStore) retain() error {

	caps, err := d.scan()

	if err != nil {
		return err
	}

	if len(caps) <= d.maxFiles {
		return nil
	}

	sortCaptures(caps, Oldest)

	for _, c := range caps[:len(caps)-d.maxFiles] {
		if err := os.Remove(filepath.Join(d.dir, c.Name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove old capture %s: %w", c.Name, err)
		}
	}

	return nil
}

// List returns every capture in the given order.  Files whose names do not
// parse as a capture timestamp are skipped
func (d *DiskStore) List(order Order) ([]Capture, error) {

	caps, err := d.scan()

	if err != nil {
		return nil, err
	}

	sortCaptures(caps, order)

	return caps, nil
}

// Page returns the requested 1 based page of the listing.  Pages below 1
// return the first page, pages past the end return no captures
func (d *DiskStore) Page(order Order, page, size int) (Page, error) {

	caps, err := d.List(order)

	if err != nil {
		return Page{}, err
	}

	return Paginate(caps, order, page, size), nil
}

// Paginate slices an ordered listing into the requested page
func Paginate(caps []Capture, order Order, page, size int) Page {

	if size <= 0 {
		size = DefaultPageSize
	}

	if page < 1 {
		page = 1
	}

	total := len(caps)
	pages := int(math.Ceil(float64(total) / float64(size)))

	start := (page - 1) * size
	end := start + size

	if start > total {
		start = total
	}

	if end > total {
		end = total
	}

	return Page{
		Captures:   caps[start:end],
		Page:       page,
		TotalPages: pages,
		Total:      total,
		Order:      order.String(),
	}
}

// Path returns the file path of the named capture
func (d *DiskStore) Path(name string) (string, error) {

	if _, err := ParseName(name); err != nil {
		return "", err
	}

	path := filepath.Join(d.dir, name)

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return "", err
	}

	return path, nil
}

// Delete removes the named capture
func (d *DiskStore) Delete(name string) error {

	d.mu.Lock()
	defer d.mu.Unlock()

	path, err := d.Path(name)

	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return fmt.Errorf("failed to delete capture %s: %w", name, err)
	}

	return nil
}

// Status returns the number of captures and the most recent one
func (d *DiskStore) Status() (Status, error) {

	caps, err := d.List(Newest)

	if err != nil {
		return Status{}, err
	}

	st := Status{Count: len(caps)}

	if len(caps) > 0 {
		last := caps[0]
		st.Last = &last
	}

	return st, nil
}

// scan reads the capture directory, a missing directory has no captures
func (d *DiskStore) scan() ([]Capture, error) {

	entries, err := os.ReadDir(d.dir)

	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read capture directory: %w", err)
	}

	caps := make([]Capture, 0, len(entries))

	for _, e := range entries {

		if e.IsDir() {
			continue
		}

		taken, err := ParseName(e.Name())

		if err != nil {
			continue
		}

		var size int64

		if info, err := e.Info(); err == nil {
			size = info.Size()
		}

		caps = append(caps, newCapture(e.Name(), taken, size))
	}

	return caps, nil
}

// ParseName returns the timestamp encoded in a capture file name
func ParseName(name string) (time.Time, error) {

	if name != filepath.Base(name) || !strings.HasSuffix(name, Ext) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	t, err := time.ParseInLocation(NameLayout, strings.TrimSuffix(name, Ext), time.Local)

	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	return t, nil
}

func newCapture(name string, taken time.Time, size int64) Capture {
	return Capture{
		ID:    uuid.NewSHA1(captureNamespace, []byte(name)).String(),
		Name:  name,
		Date:  taken.Format(DateLayout),
		Time:  taken.Format(TimeLayout),
		Taken: taken,
		Size:  size,
	}
}

// sortCaptures orders by timestamp, ties by name so listings are stable
func sortCaptures(caps []Capture, order Order) {
	sort.SliceStable(caps, func(i, j int) bool {
		a, b := caps[i], caps[j]
		if order == Oldest {
			a, b = b, a
		}
		if !a.Taken.Equal(b.Taken) {
			return a.Taken.After(b.Taken)
		}
		return a.Name > b.Name
	})
}
