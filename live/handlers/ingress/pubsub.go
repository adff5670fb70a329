// Copyright 2020 Gravwave Observatory Software Collaboration
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package ingress

import (
	"context"
	"io"

	"github.com/go-redis/redis"
)

// relayWriter publishes serialized run-stream bytes to a redis PubSub
// channel, so a collected block stream can fan out to per-stream handlers
// anywhere on the bus.
type relayWriter struct {
	redis   *redis.Client
	channel string
}

func (w *relayWriter) Write(p []byte) (int, error) {
	if err := w.redis.Publish(w.channel, string(p)).Err(); err != nil {
		return 0, err
	}
	return len(p), nil
}

// relayReader reassembles the byte stream on the subscriber side. The run
// reader pulls from it like any file; EOF is reported when the relay's
// context ends or the subscription drops.
type relayReader struct {
	messages <-chan *redis.Message
	ctx      context.Context
	buf      []byte
}

func (r *relayReader) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		select {
		case msg := <-r.messages:
			if msg == nil {
				return 0, io.EOF
			}
			r.buf = []byte(msg.Payload)
		case <-r.ctx.Done():
			return 0, io.EOF
		}
	}

	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}
