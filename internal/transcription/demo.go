package transcription

import (
	"sync"
	"time"
)

// demoScript is emitted one sentence at a time so the frontend can be
// exercised without a vendor account.
var demoScript = []string{
	"Welcome to today's lecture on recursion.",
	"A recursive function is a function that calls itself.",
	"Every recursive function needs a base case to terminate.",
	"Without a base case, the call stack grows until it overflows.",
	"Tail recursion lets some compilers reuse the current stack frame.",
}

type demoStream struct {
	results chan Result
	buf     buffer

	stop      chan struct{}
	closeOnce sync.Once
}

func newDemoStream() *demoStream {
	s := &demoStream{
		results: make(chan Result, len(demoScript)),
		stop:    make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *demoStream) run() {
	defer close(s.results)

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for _, line := range demoScript {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}

		s.buf.append(line)
		select {
		case s.results <- Result{Text: line, IsFinal: true}:
		case <-s.stop:
			return
		}
	}
	<-s.stop
}

func (s *demoStream) Send(_ []byte) error {
	// Demo mode ignores audio; the script drives the transcript.
	return nil
}

func (s *demoStream) Results() <-chan Result {
	return s.results
}

func (s *demoStream) Transcript() string {
	return s.buf.snapshot()
}

func (s *demoStream) Close() error {
	s.closeOnce.Do(func() { close(s.stop) })
	return nil
}
