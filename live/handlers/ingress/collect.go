// Copyright 2020 Gravwave Observatory Software Collaboration
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package ingress

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gravwave/gw-live/data"
	"github.com/gravwave/gw-live/live"
	"github.com/gravwave/gw-live/live/message"

	"github.com/go-redis/redis"
	"github.com/google/uuid"
	"golang.org/x/net/websocket"
)

// WsCollector accepts analysis block streams pushed over websocket, e.g.
// from a search driver, and retransmits them over redis PubSub.
type WsCollector struct {
	Redis            *redis.Client
	Addr             string
	DefaultNamespace string
}

func (wsc *WsCollector) Collect(c *websocket.Conn) {
	log.Println("serving websocket data collector to", c.Request().RemoteAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader, err := data.NewRunReader(c)
	if err != nil {
		log.Println(err)
		return
	}
	defer reader.Close()

	// The header record names the stream.
	first := reader.Next()
	header := reader.Header()
	if header == nil {
		header = &data.RunHeader{}
	}

	namespace := wsc.DefaultNamespace
	streamName := header.Run
	if streamName == "" {
		log.Println("falling back to random stream name")
		streamName = uuid.New().String()[:8]
	}
	chanString := namespace + " ingress " + streamName

	// if there is no stream data handler, create one
	nSub := wsc.Redis.PubSubNumSub(chanString).Val()
	if nSub[chanString] == 0 {
		if err := wsc.makeNewDataHandler(
			ctx,
			namespace,
			streamName,
		); err != nil {
			log.Println(err)
			return
		}
	}

	redisClient := redis.NewClient(&redis.Options{Addr: wsc.Addr})
	defer redisClient.Close()
	writer, err := data.NewRunWriter(&relayWriter{redis: redisClient, channel: chanString})
	if err != nil {
		log.Println(err)
		return
	}
	defer writer.Close()
	if err := writer.PushHeader(header); err != nil {
		log.Println(err)
		return
	}
	log.Println("data collector starting writing to channel", chanString)
	defer log.Println("data collector done writing to channel", chanString)

	c.SetReadDeadline(time.Now().Add(10 * time.Second))
	for block := first; block != nil; block = reader.Next() {
		// loop over all input blocks and retransmit them over Redis PubSub

		// if there is no stream data handler, break
		nSub := wsc.Redis.PubSubNumSub(chanString).Val()
		if nSub[chanString] == 0 {
			log.Printf("no stream handler for \"%s\"", chanString)
			break
		}

		// retransmit over Redis PubSub
		writer.Push(block)

		// update the websocket read deadline
		c.SetReadDeadline(time.Now().Add(10 * time.Second))
	}
}

func (wsc *WsCollector) makeNewDataHandler(
	ctx context.Context,
	namespace,
	streamName string,
) error {
	chanString := namespace + " ingress " + streamName
	log.Println("subscribing new data handler to channel", chanString)

	redisClient := redis.NewClient(&redis.Options{Addr: wsc.Addr})
	pubSub := redisClient.Subscribe(chanString)
	_, err := pubSub.Receive()
	if err != nil {
		redisClient.Close()
		return err
	}

	go func() {
		defer redisClient.Close()
		defer pubSub.Close()
		reader, err := data.NewRunReader(
			&relayReader{
				messages: pubSub.ChannelSize(1000),
				ctx:      ctx,
			},
		)
		if err != nil {
			log.Println(err)
			return
		}
		defer reader.Close()
		input := reader.ScanBlocks(1000)

		// publish input buffer size
		go func() {
			for {
				msg := &message.Msg{
					Type:     "stream status",
					Metadata: make(map[string]string),
				}
				msg.Metadata["stream"] = streamName
				msg.Metadata["Buffer Size"] = fmt.Sprintf("%v", len(input))
				message.PublishJsonMsg(redisClient, namespace+" stream "+streamName, msg)

				select {
				case <-ctx.Done():
					msg := &message.Msg{
						Type:     "stream status",
						Metadata: make(map[string]string),
					}
					msg.Metadata["stream"] = streamName
					msg.Metadata["Buffer Size"] = fmt.Sprintf("stream disconnected, wrapping up")
					message.PublishJsonMsg(redisClient, namespace+" stream "+streamName, msg)
					return
				default:
					time.Sleep(100 * time.Millisecond)
				}
			}
		}()

		// make operations array for the stream
		ops := live.BuildSearchOps(namespace, streamName, redisClient, wsc.Addr)

		// execute operations as a data sink
		if ops != nil {
			ops.Sink(input)
		}

		log.Println("quitting subscriber goroutine on channel", chanString)
	}()

	return nil
}
