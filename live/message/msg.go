// Copyright 2020 Gravwave Observatory Software Collaboration
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

// Package message carries the JSON command and status messages exchanged
// between search drivers, stream monitors, and web clients over redis
// PubSub and websockets.
package message

import (
	"context"
	"encoding/json"
	"log"

	"github.com/go-redis/redis"
	"github.com/gorilla/websocket"
)

type Msg struct {
	Type     string
	Metadata map[string]string
	Payload  []byte
}

func NewMsg(msgType string) *Msg {
	return &Msg{
		Type:     msgType,
		Metadata: make(map[string]string),
	}
}

func PublishJsonMsg(redis *redis.Client, channel string, msg *Msg) error {
	msgBytes, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	redis.Publish(channel, string(msgBytes))
	return nil
}

type Cmd struct {
	Command  string
	Metadata map[string]string
}

type Executer interface {
	Execute(*Cmd) error
}

func ReceivePubSubCmds(ctx context.Context, addr, channel string) <-chan *Cmd {
	cmds := make(chan *Cmd)

	go func() {
		defer close(cmds)

		redisClient := redis.NewClient(&redis.Options{Addr: addr})
		defer redisClient.Close()
		sub := redisClient.Subscribe(channel)
		_, err := sub.Receive()
		if err != nil {
			log.Println("sub.Receive():", err)
			return
		}
		defer sub.Close()

		log.Println("listening for commands on channel", channel)
		defer log.Println("done listening for commands on channel", channel)

		msgs := sub.ChannelSize(10)
		for {
			select {
			case msg := <-msgs:
				var cmd Cmd
				if err := json.Unmarshal([]byte(msg.Payload), &cmd); err != nil {
					return
				}
				cmds <- &cmd
			case <-ctx.Done():
				return
			}
		}
	}()

	return cmds
}

func ReceiveWsCmds(ctx context.Context, c *websocket.Conn) <-chan *Cmd {
	cmds := make(chan *Cmd)

	go func() {
		defer close(cmds)

		for {
			var cmd Cmd
			if err := c.ReadJSON(&cmd); err != nil {
				return
			}
			cmds <- &cmd
		}
	}()

	return cmds
}
