package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/video-system/go-sensor-stream/pkg/frame"
	"github.com/video-system/go-sensor-stream/pkg/sensor"
)

type streamOptions struct {
	Sensor   string
	Streams  []string
	Duration time.Duration
}

func newStreamCommand(s *settings) *cobra.Command {
	opts := &streamOptions{}

	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Stream the default profile of each stream and report what arrived",
		Example: `  sensorctl stream --duration 10s
  sensorctl stream --sensor "Motion Module" --stream gyro --stream accel`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStream(cmd.Context(), s, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.Sensor, "sensor", "", "Only stream this sensor")
	flags.StringArrayVar(&opts.Streams, "stream", nil, "Only open these streams (depth, infrared, color, gyro, accel, gpio)")
	flags.DurationVarP(&opts.Duration, "duration", "d", 5*time.Second, "How long to stream")
	return cmd
}

// streamStats accumulates per-stream delivery figures
type streamStats struct {
	mu    sync.Mutex
	byKey map[string]*streamStat
}

type streamStat struct {
	frames  uint64
	first   float64
	last    float64
	counter uint64
	domain  frame.TimestampDomain
}

func (st *streamStats) add(f *frame.Frame) {
	key := fmt.Sprintf("%s/%d %s", f.Stream, f.Index, f.Format)

	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.byKey[key]
	if !ok {
		s = &streamStat{first: f.Timestamp}
		st.byKey[key] = s
	}
	s.frames++
	s.last = f.Timestamp
	s.counter = f.Counter
	s.domain = f.Domain
}

func (st *streamStats) print(elapsed time.Duration) {
	st.mu.Lock()
	defer st.mu.Unlock()

	keys := make([]string, 0, len(st.byKey))
	for k := range st.byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	green := color.New(color.FgGreen)
	for _, k := range keys {
		s := st.byKey[k]
		rate := float64(s.frames) / elapsed.Seconds()
		fmt.Printf("  %-28s %s frames=%d counter=%d span=%.1fms domain=%s\n",
			k, green.Sprintf("%6.1f fps", rate), s.frames, s.counter, s.last-s.first, s.domain)
	}
}

// defaultRequests picks the first principal request of every stream
func defaultRequests(sn sensor.Interface, only []string) ([]sensor.StreamProfile, error) {
	requests, err := sn.PrincipalRequests()
	if err != nil {
		return nil, err
	}

	wanted := make(map[frame.StreamKind]bool)
	for _, name := range only {
		kind, err := frame.ParseStreamKind(name)
		if err != nil {
			return nil, err
		}
		wanted[kind] = true
	}

	type key struct {
		stream frame.StreamKind
		index  int
	}
	seen := make(map[key]bool)
	var out []sensor.StreamProfile
	for _, r := range requests {
		k := key{r.Stream, r.Index}
		if seen[k] || (len(wanted) > 0 && !wanted[r.Stream]) {
			continue
		}
		seen[k] = true
		out = append(out, r)
	}
	return out, nil
}

func runStream(ctx context.Context, s *settings, opts *streamOptions) error {
	d, log, err := openDevice(s)
	if err != nil {
		return err
	}
	defer d.Close()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats := &streamStats{byKey: make(map[string]*streamStat)}
	var started []sensor.Interface
	for _, sn := range d.Sensors() {
		if opts.Sensor != "" && sn.Name() != opts.Sensor {
			continue
		}
		requests, err := defaultRequests(sn, opts.Streams)
		if err != nil {
			return err
		}
		if len(requests) == 0 {
			continue
		}
		if notifier, ok := sn.(interface {
			RegisterNotificationsCallback(sensor.NotificationCallback)
		}); ok {
			name := sn.Name()
			notifier.RegisterNotificationsCallback(func(note sensor.Notification) {
				log.WithFields(logrus.Fields{
					"sensor":   name,
					"category": note.Category,
				}).Warn(note.Description)
			})
		}
		if err := sn.Open(requests); err != nil {
			return err
		}
		if err := sn.Start(stats.add); err != nil {
			return err
		}
		started = append(started, sn)
		log.WithFields(logrus.Fields{"sensor": sn.Name(), "profiles": len(requests)}).Info("streaming")
	}
	if len(started) == 0 {
		return errors.New("nothing to stream")
	}

	begin := time.Now()
	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received...")
	case <-time.After(opts.Duration):
	}
	elapsed := time.Since(begin)

	for _, sn := range started {
		if err := sn.Stop(); err != nil {
			log.WithError(err).WithField("sensor", sn.Name()).Warn("stop failed")
		}
		if err := sn.Close(); err != nil {
			log.WithError(err).WithField("sensor", sn.Name()).Warn("close failed")
		}
	}

	color.New(color.Bold).Printf("\n%s after %s\n", d.Name(), elapsed.Round(time.Millisecond))
	stats.print(elapsed)
	return nil
}
