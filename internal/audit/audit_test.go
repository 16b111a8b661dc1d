package audit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/segmentio/kafka-go"

	"github.com/kozaktomas/face-finder/internal/database/mock"
)

// memoryRecorder collects records; block, when set, holds every call until closed.
type memoryRecorder struct {
	mu      sync.Mutex
	records []Record
	block   chan struct{}
	err     error
	panics  bool
}

func (m *memoryRecorder) Record(_ context.Context, r Record) error {
	if m.block != nil {
		<-m.block
	}
	if m.panics {
		panic("sink exploded")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
	return m.err
}

func (m *memoryRecorder) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Record(nil), m.records...)
}

type fakeKafkaWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (f *fakeKafkaWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeKafkaWriter) Close() error {
	f.closed = true
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleRecord(subject string) Record {
	return NewRecord(subject, "https://example.com/q.jpg", "anna.jpg", "https://example.com/anna.jpg", 91.5, "whole_face")
}

var _ = Describe("Record", func() {
	It("fills id, action and timestamp", func() {
		r := sampleRecord("subject-1")
		Expect(r.ID).NotTo(BeEmpty())
		Expect(r.Action).To(Equal(ActionImageMatch))
		Expect(r.CreatedAt).To(BeTemporally("~", time.Now(), time.Minute))
	})

	It("converts to a database row", func() {
		r := sampleRecord("subject-1")
		row := r.MatchRecord()
		Expect(row.ID).To(Equal(r.ID))
		Expect(row.CandidateURL).To(Equal(r.CandidateURL))
		Expect(row.Confidence).To(Equal(91.5))
	})
})

var _ = Describe("Dispatcher", func() {
	var (
		rec *memoryRecorder
		d   *Dispatcher
	)

	BeforeEach(func() {
		rec = &memoryRecorder{}
	})

	newDispatcher := func(queue uint) *Dispatcher {
		disp, err := NewDispatcher(&DispatcherConfig{
			Recorder:   rec,
			NumWorkers: 1,
			QueueSize:  queue,
			Logger:     discardLogger(),
		})
		Expect(err).NotTo(HaveOccurred())
		return disp
	}

	It("requires a recorder", func() {
		_, err := NewDispatcher(&DispatcherConfig{})
		Expect(err).To(HaveOccurred())
	})

	It("delivers queued records before Close returns", func() {
		d = newDispatcher(10)
		for range 5 {
			Expect(d.Enqueue(sampleRecord("s"))).To(BeTrue())
		}
		d.Close()
		Expect(rec.Records()).To(HaveLen(5))
	})

	It("drops records when the queue is full", func() {
		rec.block = make(chan struct{})
		d = newDispatcher(1)

		// The first record occupies the worker, the second fills the queue.
		Expect(d.Enqueue(sampleRecord("a"))).To(BeTrue())
		Eventually(func() int { return len(d.queue) }).Should(BeZero())
		Expect(d.Enqueue(sampleRecord("b"))).To(BeTrue())
		Expect(d.Enqueue(sampleRecord("c"))).To(BeFalse())

		close(rec.block)
		d.Close()
		Expect(rec.Records()).To(HaveLen(2))
	})

	It("rejects records after Close", func() {
		d = newDispatcher(2)
		d.Close()
		Expect(d.Enqueue(sampleRecord("late"))).To(BeFalse())
		d.Close()
	})

	It("survives recorder errors and panics", func() {
		rec.err = errors.New("sink down")
		d = newDispatcher(4)
		Expect(d.Enqueue(sampleRecord("x"))).To(BeTrue())
		d.Close()
		Expect(rec.Records()).To(HaveLen(1))

		panicky := &memoryRecorder{panics: true}
		d2, err := NewDispatcher(&DispatcherConfig{Recorder: panicky, Logger: discardLogger()})
		Expect(err).NotTo(HaveOccurred())
		Expect(d2.Enqueue(sampleRecord("y"))).To(BeTrue())
		Expect(d2.Enqueue(sampleRecord("z"))).To(BeTrue())
		d2.Close()
	})
})

var _ = Describe("Recorders", func() {
	ctx := context.Background()

	It("stores records through the postgres recorder", func() {
		writer := mock.NewMockMatchRecordWriter()
		r := sampleRecord("subject-9")
		Expect(NewPostgresRecorder(writer).Record(ctx, r)).To(Succeed())

		stored := writer.Records()
		Expect(stored).To(HaveLen(1))
		Expect(stored[0].ID).To(Equal(r.ID))
		Expect(stored[0].SubjectID).To(Equal("subject-9"))
	})

	It("wraps postgres errors", func() {
		writer := mock.NewMockMatchRecordWriter()
		writer.SaveError = errors.New("connection refused")
		err := NewPostgresRecorder(writer).Record(ctx, sampleRecord("s"))
		Expect(err).To(MatchError(ContainSubstring("connection refused")))
	})

	It("logs records", func() {
		Expect(NewLogRecorder(discardLogger()).Record(ctx, sampleRecord("s"))).To(Succeed())
		Expect(NewLogRecorder(nil).Record(ctx, sampleRecord("s"))).To(Succeed())
	})

	It("fans out to every recorder and joins errors", func() {
		a := &memoryRecorder{err: errors.New("a failed")}
		b := &memoryRecorder{}
		err := MultiRecorder{a, b}.Record(ctx, sampleRecord("s"))
		Expect(err).To(MatchError(ContainSubstring("a failed")))
		Expect(b.Records()).To(HaveLen(1))
	})
})

var _ = Describe("KafkaPublisher", func() {
	ctx := context.Background()

	It("validates configuration", func() {
		_, err := NewKafkaPublisher(nil, "topic")
		Expect(err).To(MatchError(ErrNoBrokers))
		_, err = NewKafkaPublisher([]string{"localhost:9092"}, "")
		Expect(err).To(HaveOccurred())

		p, err := NewKafkaPublisher([]string{"localhost:9092"}, "matches")
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Close()).To(Succeed())
	})

	It("publishes a versioned event keyed by subject", func() {
		w := &fakeKafkaWriter{}
		p := &KafkaPublisher{writer: w, topic: "matches"}
		r := sampleRecord("subject-7")

		Expect(p.Record(ctx, r)).To(Succeed())
		Expect(w.messages).To(HaveLen(1))
		Expect(string(w.messages[0].Key)).To(Equal("subject-7"))

		var ev Event
		Expect(json.Unmarshal(w.messages[0].Value, &ev)).To(Succeed())
		Expect(ev.SchemaVersion).To(Equal(SchemaVersionV1))
		Expect(ev.EventType).To(Equal(EventTypeMatchRecorded))
		Expect(ev.Record.ID).To(Equal(r.ID))

		Expect(p.Close()).To(Succeed())
		Expect(w.closed).To(BeTrue())
	})

	It("wraps write errors", func() {
		p := &KafkaPublisher{writer: &fakeKafkaWriter{err: errors.New("broker gone")}, topic: "matches"}
		Expect(p.Record(ctx, sampleRecord("s"))).To(MatchError(ContainSubstring("broker gone")))
	})
})
