package domain

// DownloadCallbacks is the only channel through which the engine reports to
// its caller. Downloads are passed by value.
type DownloadCallbacks struct {
	OnProgress func(download Download)
	OnComplete func()
	OnError    func(download Download, message string)
}

// Progress invokes OnProgress if set
func (c DownloadCallbacks) Progress(download Download) {
	if c.OnProgress != nil {
		c.OnProgress(download)
	}
}

// Complete invokes OnComplete if set
func (c DownloadCallbacks) Complete() {
	if c.OnComplete != nil {
		c.OnComplete()
	}
}

// Error invokes OnError if set
func (c DownloadCallbacks) Error(download Download, message string) {
	if c.OnError != nil {
		c.OnError(download, message)
	}
}
