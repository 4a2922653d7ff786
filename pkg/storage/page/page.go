package page

// PageSize is the size of one page on disk and in a buffer frame.
const PageSize = 4096

// PageID identifies a page in the backing store. -1 marks "no page".
type PageID int32

const (
	InvalidPageID PageID = -1
)

// Page is one buffer frame. Only the buffer pool changes id, pin count and
// the dirty flag; callers read and write Data while they hold a pin.
type Page struct {
	id       PageID
	pinCount int32
	isDirty  bool
	Data     [PageSize]byte
}

// NewPage returns an empty frame holding no page.
func NewPage() *Page {
	return &Page{id: InvalidPageID}
}

func (p *Page) ID() PageID {
	return p.id
}

func (p *Page) SetID(id PageID) {
	p.id = id
}

func (p *Page) PinCount() int32 {
	return p.pinCount
}

func (p *Page) SetPinCount(count int32) {
	p.pinCount = count
}

func (p *Page) IsDirty() bool {
	return p.isDirty
}

func (p *Page) SetDirty(dirty bool) {
	p.isDirty = dirty
}

// Clear zeroes the page bytes.
func (p *Page) Clear() {
	p.Data = [PageSize]byte{}
}

// Reset returns the frame to the "holds no page" state.
func (p *Page) Reset() {
	p.id = InvalidPageID
	p.pinCount = 0
	p.isDirty = false
	p.Clear()
}
