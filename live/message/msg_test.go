// Copyright 2020 Gravwave Observatory Software Collaboration
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package message

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis"
	"github.com/go-redis/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestPublishJsonMsgRoundTrip(t *testing.T) {
	_, client := testRedis(t)

	sub := client.Subscribe("test broadcast")
	_, err := sub.Receive()
	require.NoError(t, err)
	defer sub.Close()

	msg := NewMsg("show frame")
	msg.Metadata["show id"] = "abc"
	msg.Payload = []byte("<svg/>")
	require.NoError(t, PublishJsonMsg(client, "test broadcast", msg))

	received, err := sub.ReceiveMessage()
	require.NoError(t, err)

	var got Msg
	require.NoError(t, json.Unmarshal([]byte(received.Payload), &got))
	assert.Equal(t, "show frame", got.Type)
	assert.Equal(t, "abc", got.Metadata["show id"])
	assert.Equal(t, []byte("<svg/>"), got.Payload)
}

func TestReceivePubSubCmds(t *testing.T) {
	mr, client := testRedis(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cmds := ReceivePubSubCmds(ctx, mr.Addr(), "test stream cmd run1")

	// The subscription is confirmed before the channel delivers, but give
	// the listener a moment to come up before publishing.
	var published bool
	for i := 0; i < 50 && !published; i++ {
		n := client.PubSubNumSub("test stream cmd run1").Val()["test stream cmd run1"]
		if n > 0 {
			published = true
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.True(t, published, "command listener never subscribed")

	cmd := &Cmd{Command: "set params", Metadata: map[string]string{"alpha": "0.5"}}
	buf, err := json.Marshal(cmd)
	require.NoError(t, err)
	client.Publish("test stream cmd run1", string(buf))

	select {
	case got := <-cmds:
		require.NotNil(t, got)
		assert.Equal(t, "set params", got.Command)
		assert.Equal(t, "0.5", got.Metadata["alpha"])
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for command")
	}

	cancel()
	select {
	case _, open := <-cmds:
		assert.False(t, open, "command channel must close on cancel")
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}
