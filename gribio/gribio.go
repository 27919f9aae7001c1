// Package gribio reads GRIB2 messages from files, compressed streams and
// object storage buckets.
package gribio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/golang/glog"
	"github.com/grafana/dskit/flagext"
	"github.com/thanos-io/objstore"

	"github.com/sdifrance/gogrib2"
	"github.com/sdifrance/gogrib2/framer"
)

// Config configures how GRIB2 streams are read and decoded.
type Config struct {
	// MaxMessageSize rejects messages declaring a larger total length. Zero
	// disables the check.
	MaxMessageSize flagext.Bytes

	// Workers bounds the number of messages decoded at once. Zero means
	// GOMAXPROCS.
	Workers int
}

// RegisterFlags registers the flags of c on f, with their defaults.
func (c *Config) RegisterFlags(f *flag.FlagSet) {
	_ = c.MaxMessageSize.Set("512MB")
	f.Var(&c.MaxMessageSize, "grib.max-message-size", "Largest total length a GRIB2 message may declare.")
	f.IntVar(&c.Workers, "grib.workers", 0, "Number of messages decoded concurrently. 0 uses GOMAXPROCS.")
}

// Validate checks c for invalid values.
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("invalid number of workers %d", c.Workers)
	}
	if c.MaxMessageSize != 0 && c.MaxMessageSize < framer.IndicatorLength+framer.EndLength {
		return fmt.Errorf("max message size %s cannot hold a message", c.MaxMessageSize.String())
	}
	return nil
}

// File holds the raw messages read from one stream.
type File struct {
	// Name is the path or object name the messages were read from.
	Name string

	cfg      Config
	messages [][]byte
}

// Raw returns the messages of f, in stream order.
func (f *File) Raw() [][]byte {
	return f.messages
}

// Decode decodes every message of f. Errors are reported as by
// gogrib2.ReadMessages.
func (f *File) Decode() ([]*gogrib2.Message, error) {
	return gogrib2.ReadMessages(f.messages, gogrib2.Config{Workers: f.cfg.Workers})
}

// Open reads the GRIB2 file at path.
func Open(path string, cfg Config) (*File, error) {
	r, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	f, err := ReadFile(r, cfg)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	f.Name = path
	return f, nil
}

// ReadObject reads the GRIB2 object name from bkt.
func ReadObject(ctx context.Context, bkt objstore.BucketReader, name string, cfg Config) (*File, error) {
	rc, err := bkt.Get(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("getting object %s: %w", name, err)
	}
	defer rc.Close()
	f, err := ReadFile(rc, cfg)
	if err != nil {
		return nil, fmt.Errorf("reading object %s: %w", name, err)
	}
	f.Name = name
	return f, nil
}

// ReadBucket reads every object of bkt under prefix, recursively, in the
// order the bucket lists them.
func ReadBucket(ctx context.Context, bkt objstore.BucketReader, prefix string, cfg Config) ([]*File, error) {
	var files []*File
	err := bkt.Iter(ctx, prefix, func(name string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, err := ReadObject(ctx, bkt, name, cfg)
		if err != nil {
			return err
		}
		files = append(files, f)
		return nil
	}, objstore.WithRecursiveIter)
	if err != nil {
		return files, fmt.Errorf("iterating %q: %w", prefix, err)
	}
	return files, nil
}

// ReadFile reads every GRIB2 message of r. Streams compressed with zstd,
// gzip, bzip2 or snappy framing are decompressed first. Zero padding between
// messages is skipped.
func ReadFile(r io.Reader, cfg Config) (*File, error) {
	dr, codec, err := decompress(r)
	if err != nil {
		return nil, err
	}
	defer dr.Close()
	if codec != "" {
		glog.Infof("reading %s compressed stream", codec)
	}

	f := &File{cfg: cfg}
	rr := bufio.NewReader(dr)
	offset := 0
	for {
		skipCount, err := skipZeros(rr)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return f, nil
			}
			return nil, fmt.Errorf("error parsing stream: %w", err)
		}
		offset += skipCount

		messageLen, err := peekLength(rr, offset, cfg)
		if err != nil {
			return nil, fmt.Errorf("error encountered when expecting a GRIB2 message: %w", err)
		}
		glog.V(1).Infof("message %d: %d octets at offset %d", len(f.messages), messageLen, offset)

		// The buffer grows with the octets actually read, not with the
		// declared length.
		var msg bytes.Buffer
		if readCount, err := io.CopyN(&msg, rr, int64(messageLen)); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, &framer.TruncatedError{Offset: offset, Need: messageLen, Have: int(readCount)}
			}
			return nil, fmt.Errorf("error while reading message of expected length %d; only read %d bytes: %w", messageLen, readCount, err)
		}
		f.messages = append(f.messages, msg.Bytes())
		offset += int(messageLen)
	}
}

func skipZeros(rr *bufio.Reader) (int, error) {
	skipCount := 0
	for {
		b, err := rr.ReadByte()
		if err != nil {
			return skipCount, err
		}
		if b == 0 {
			skipCount++
			continue
		}
		if err := rr.UnreadByte(); err != nil {
			return skipCount, err
		}
		return skipCount, nil
	}
}

// peekLength checks the indicator section at the head of rr and returns the
// declared total length of the message.
func peekLength(rr *bufio.Reader, offset int, cfg Config) (uint64, error) {
	data, err := rr.Peek(framer.IndicatorLength)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, &framer.TruncatedError{Offset: offset, Need: framer.IndicatorLength, Have: len(data)}
		}
		return 0, err
	}
	if got, want := string(data[0:4]), "GRIB"; got != want {
		return 0, &framer.MarkerError{Offset: offset, Got: got, Want: want}
	}
	if edition := int(data[7]); edition != 2 {
		return 0, &framer.EditionError{Edition: edition}
	}
	// https://codes.ecmwf.int/grib/format/grib2/sections/0/
	messageLength := binary.BigEndian.Uint64(data[8:16])
	if messageLength < framer.IndicatorLength+framer.EndLength {
		return 0, fmt.Errorf("message at offset %d declares total length %d", offset, messageLength)
	}
	if messageLength > math.MaxInt {
		return 0, fmt.Errorf("message at offset %d declares %d octets, above the limit of %d", offset, messageLength, uint64(math.MaxInt))
	}
	if cfg.MaxMessageSize != 0 && messageLength > uint64(cfg.MaxMessageSize) {
		return 0, fmt.Errorf("message at offset %d declares %d octets, above the limit of %s", offset, messageLength, cfg.MaxMessageSize.String())
	}
	return messageLength, nil
}
