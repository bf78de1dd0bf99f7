package sink

import "gocv.io/x/gocv"

// Screen shows frames in a desktop window. The window is created on the
// first Put, so constructing a Screen needs no display.
type Screen struct {
	Title string

	win    *gocv.Window
	closed bool
}

func NewScreen(title string) *Screen {
	return &Screen{Title: title}
}

func (s *Screen) Put(frame gocv.Mat) error {
	if s.closed {
		return ErrClosed
	}
	if s.win == nil {
		s.win = gocv.NewWindow(s.Title)
	}
	s.win.IMShow(frame)
	// the window only repaints while the event loop is pumped
	s.win.WaitKey(1)
	return nil
}

func (s *Screen) Close() error {
	if s.closed || s.win == nil {
		s.closed = true
		return nil
	}
	s.closed = true
	return s.win.Close()
}
