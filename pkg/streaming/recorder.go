// ABOUTME: Session event recorder interface
// ABOUTME: Lets metrics backends observe controller activity without coupling to them
package streaming

// Recorder observes controller events
type Recorder interface {
	StreamOpened(url string)
	OpenFailed(url string)
	Retry(attempt int)
	StarvationPaused()
	MetadataPublished()
	DeadTransports(n int)
	Buffered(percent int)
}

type nopRecorder struct{}

func (nopRecorder) StreamOpened(string) {}
func (nopRecorder) OpenFailed(string)   {}
func (nopRecorder) Retry(int)           {}
func (nopRecorder) StarvationPaused()   {}
func (nopRecorder) MetadataPublished()  {}
func (nopRecorder) DeadTransports(int)  {}
func (nopRecorder) Buffered(int)        {}
