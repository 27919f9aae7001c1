// Command example dumps a summary of every GRIB2 message of a file or of a
// filesystem bucket, and optionally samples the wind field at a coordinate.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/golang/glog"
	"github.com/thanos-io/objstore/providers/filesystem"

	"github.com/sdifrance/gogrib2"
	"github.com/sdifrance/gogrib2/gribio"
	"github.com/sdifrance/gogrib2/vector"
)

var (
	input     = flag.String("input", "", "Path to the input GRIB2 file, optionally compressed with zstd, gzip, bzip2 or snappy.")
	bucketDir = flag.String("bucket-dir", "", "Root of a filesystem bucket to read instead of -input.")
	prefix    = flag.String("prefix", "", "Prefix of the bucket objects to read.")
	jsonOut   = flag.Bool("json", false, "Print one JSON object per message.")
	lon       = flag.Float64("lon", math.NaN(), "Longitude at which to sample the wind field.")
	lat       = flag.Float64("lat", math.NaN(), "Latitude at which to sample the wind field.")

	cfg gribio.Config
)

func main() {
	cfg.RegisterFlags(flag.CommandLine)
	flag.Parse()
	if err := run(context.Background()); err != nil {
		glog.Exitf("got fatal error: %v", err)
	}
}

func run(ctx context.Context) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	files, err := readFiles(ctx)
	if err != nil {
		return err
	}
	for _, f := range files {
		msgs, err := f.Decode()
		if err != nil {
			// Failed messages are reported and the rest is still dumped.
			glog.Warningf("%s: %v", f.Name, err)
		}
		for _, m := range msgs {
			if err := dump(os.Stdout, f.Name, m); err != nil {
				return err
			}
		}
		if !math.IsNaN(*lon) && !math.IsNaN(*lat) {
			if err := sample(os.Stdout, msgs); err != nil {
				glog.Warningf("%s: %v", f.Name, err)
			}
		}
	}
	return nil
}

func readFiles(ctx context.Context) ([]*gribio.File, error) {
	if *bucketDir != "" {
		bkt, err := filesystem.NewBucket(*bucketDir)
		if err != nil {
			return nil, fmt.Errorf("opening bucket %s: %w", *bucketDir, err)
		}
		defer bkt.Close()
		return gribio.ReadBucket(ctx, bkt, *prefix, cfg)
	}
	if *input == "" {
		return nil, fmt.Errorf("one of -input or -bucket-dir is required")
	}
	f, err := gribio.Open(*input, cfg)
	if err != nil {
		return nil, err
	}
	return []*gribio.File{f}, nil
}

type gridSummary struct {
	Template int     `json:"template"`
	Ni       int     `json:"ni"`
	Nj       int     `json:"nj"`
	La1      float64 `json:"la1"`
	Lo1      float64 `json:"lo1"`
	La2      float64 `json:"la2"`
	Lo2      float64 `json:"lo2"`
	Di       float64 `json:"di"`
	Dj       float64 `json:"dj"`
	Scanning string  `json:"scanning"`
}

type summary struct {
	File          string       `json:"file"`
	Index         int          `json:"index"`
	Product       int          `json:"product"`
	Parameter     string       `json:"parameter,omitempty"`
	Level         string       `json:"level,omitempty"`
	ReferenceTime *time.Time   `json:"referenceTime,omitempty"`
	ForecastTime  *time.Time   `json:"forecastTime,omitempty"`
	Grid          *gridSummary `json:"grid,omitempty"`
	DataTemplate  int          `json:"dataTemplate"`
	Points        int          `json:"points"`
	Missing       int          `json:"missing"`
	Min           *float64     `json:"min,omitempty"`
	Max           *float64     `json:"max,omitempty"`
	Warnings      []string     `json:"warnings,omitempty"`
}

func summarize(name string, m *gogrib2.Message) summary {
	s := summary{File: name, Index: m.Index, Product: m.Product, DataTemplate: m.DataTemplate, Warnings: m.Warnings}
	if p, err := m.Parameter(); err == nil {
		s.Parameter = p.String()
	}
	if l, err := m.Level(); err == nil {
		s.Level = l.String()
	}
	if t, err := m.ReferenceTime(); err == nil {
		s.ReferenceTime = &t
	}
	if t, err := m.ForecastTime(); err == nil {
		s.ForecastTime = &t
	}
	if g := m.Grid; g != nil {
		s.Grid = &gridSummary{
			Template: g.Template, Ni: g.Ni, Nj: g.Nj,
			La1: g.La1, Lo1: g.Lo1, La2: g.La2, Lo2: g.Lo2,
			Di: g.Di, Dj: g.Dj, Scanning: g.Scanning.String(),
		}
	}
	if vg := m.Values; vg != nil {
		s.Points = len(vg.Values)
		for _, v := range vg.Values {
			if math.IsNaN(v) {
				s.Missing++
			}
		}
		if lo, hi, ok := vg.Range(); ok {
			s.Min, s.Max = &lo, &hi
		}
	}
	return s
}

func dump(w io.Writer, name string, m *gogrib2.Message) error {
	s := summarize(name, m)
	if *jsonOut {
		return json.NewEncoder(w).Encode(s)
	}
	_, err := fmt.Fprintf(w, "%s message[%d.%d]: %s at %s, grid %+v, template 5.%d, %d points (%d missing)",
		s.File, s.Index, s.Product, s.Parameter, s.Level, s.Grid, s.DataTemplate, s.Points, s.Missing)
	if err != nil {
		return err
	}
	if s.Min != nil {
		_, err = fmt.Fprintf(w, ", range [%g, %g]", *s.Min, *s.Max)
		if err != nil {
			return err
		}
	}
	_, err = fmt.Fprintln(w)
	return err
}

func sample(w io.Writer, msgs []*gogrib2.Message) error {
	f, err := vector.Pair(msgs)
	if err != nil {
		return err
	}
	u, v, ok := f.ValueAt(*lon, *lat)
	if !ok {
		return fmt.Errorf("no wind value at %g, %g", *lon, *lat)
	}
	speed, bearing, _ := f.SpeedAt(*lon, *lat)
	_, err = fmt.Fprintf(w, "wind at %g, %g: u=%g v=%g speed=%g bearing=%g\n", *lon, *lat, u, v, speed, bearing)
	return err
}
