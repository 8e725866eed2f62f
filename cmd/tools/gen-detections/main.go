// Command gen-detections emits synthetic vehicle detections over UDP
// for exercising the stability pipeline without a perception stack. The
// generated traffic cycles through free flow, congestion onset,
// gridlock, and recovery so alerts and episodes can be observed
// end to end.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"math/rand"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/trafficvitals/tvsi/internal/engine"
)

var (
	addr     = flag.String("addr", "127.0.0.1:5600", "UDP address of the tvsi ingest listener")
	streamID = flag.String("stream", "cam-1", "stream identifier to emit")
	fps      = flag.Float64("fps", 10, "detection frames per second")
	duration = flag.Duration("duration", 10*time.Minute, "how long to run")
	seed     = flag.Int64("seed", 0, "random seed (0 uses current time)")
)

// phase describes one segment of the synthetic traffic cycle.
type phase struct {
	name      string
	fraction  float64 // share of the cycle
	spawnRate float64 // expected new vehicles per frame
	meanSpeed float64 // m/s
	speedSD   float64
	lifetime  int // frames a vehicle stays in view
}

var cycle = []phase{
	{name: "free flow", fraction: 0.4, spawnRate: 0.6, meanSpeed: 14, speedSD: 1.5, lifetime: 30},
	{name: "onset", fraction: 0.2, spawnRate: 0.9, meanSpeed: 8, speedSD: 3.0, lifetime: 60},
	{name: "gridlock", fraction: 0.2, spawnRate: 0.2, meanSpeed: 1.5, speedSD: 1.0, lifetime: 200},
	{name: "recovery", fraction: 0.2, spawnRate: 0.5, meanSpeed: 10, speedSD: 2.0, lifetime: 40},
}

const cycleDuration = 8 * time.Minute

type vehicle struct {
	id        string
	remaining int
	speed     float64
	x, y      float64
}

func phaseAt(elapsed time.Duration) phase {
	pos := float64(elapsed%cycleDuration) / float64(cycleDuration)
	acc := 0.0
	for _, p := range cycle {
		acc += p.fraction
		if pos < acc {
			return p
		}
	}
	return cycle[len(cycle)-1]
}

func main() {
	flag.Parse()

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(*seed))

	conn, err := net.Dial("udp", *addr)
	if err != nil {
		log.Fatalf("failed to dial %s: %v", *addr, err)
	}
	defer conn.Close()

	log.Printf("emitting synthetic detections for %s to %s (seed %d)", *streamID, *addr, *seed)

	frameInterval := time.Duration(float64(time.Second) / *fps)
	deadline := time.Now().Add(*duration)
	start := time.Now()

	var (
		active    []*vehicle
		frame     int64
		lastPhase string
		sent      int
	)

	for time.Now().Before(deadline) {
		p := phaseAt(time.Since(start))
		if p.name != lastPhase {
			log.Printf("phase: %s (active vehicles %d)", p.name, len(active))
			lastPhase = p.name
		}

		// Spawn new vehicles.
		for rng.Float64() < p.spawnRate {
			active = append(active, &vehicle{
				id:        uuid.NewString()[:8],
				remaining: p.lifetime + rng.Intn(p.lifetime/2+1),
				speed:     p.meanSpeed + rng.NormFloat64()*p.speedSD,
				x:         rng.Float64() * 40,
				y:         rng.Float64() * 12,
			})
			if p.spawnRate < 1 {
				break
			}
		}

		// Emit one detection line per active vehicle.
		alive := active[:0]
		for _, v := range active {
			if v.speed < 0 {
				v.speed = 0
			}
			v.x += v.speed / *fps
			sample := engine.DetectionSample{
				StreamID:   *streamID,
				FrameIndex: frame,
				TrackID:    v.id,
				Class:      "car",
				X:          v.x,
				Y:          v.y,
				SpeedMPS:   v.speed,
			}
			line, err := json.Marshal(sample)
			if err != nil {
				log.Fatalf("marshal failed: %v", err)
			}
			if _, err := conn.Write(append(line, '\n')); err != nil {
				log.Printf("write failed: %v", err)
			}
			sent++

			v.remaining--
			// Drift toward the current phase speed so vehicles respond
			// to congestion transitions.
			v.speed += (p.meanSpeed - v.speed) * 0.05
			if v.remaining > 0 {
				alive = append(alive, v)
			}
		}
		active = alive

		frame++
		time.Sleep(frameInterval)
	}

	log.Printf("done: %d detections over %d frames", sent, frame)
}
