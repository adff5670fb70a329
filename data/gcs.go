// Copyright 2020 Gravwave Observatory Software Collaboration
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package data

import (
	"context"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

func ListGcsRuns(ctx context.Context, bucket, prefix string, credentials []byte) ([]*RunObject, error) {
	client, err := storage.NewClient(
		ctx,
		option.WithCredentialsJSON(credentials),
	)
	if err != nil {
		return nil, err
	}

	var runList []*RunObject

	bucketHandle := client.Bucket(bucket)
	it := bucketHandle.Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		objAttrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		runList = append(runList, &RunObject{Name: objAttrs.Name})
	}

	return runList, nil
}

func CreateGcsReader(ctx context.Context, bucket, name string, credentials []byte) (*RunReader, error) {
	client, err := storage.NewClient(
		ctx,
		option.WithCredentialsJSON(credentials),
	)
	if err != nil {
		return nil, err
	}

	objectReader, err := client.Bucket(bucket).Object(name).NewReader(ctx)
	if err != nil {
		client.Close()
		return nil, err
	}
	runReader, err := NewRunReader(objectReader)
	if err != nil {
		objectReader.Close()
		client.Close()
		return nil, err
	}
	runReader.DeferUntilClose(objectReader.Close)
	runReader.DeferUntilClose(client.Close)
	return runReader, nil
}

func CreateGcsWriter(ctx context.Context, bucket, name string, credentials []byte) (*RunWriter, error) {
	client, err := storage.NewClient(
		ctx,
		option.WithCredentialsJSON(credentials),
	)
	if err != nil {
		return nil, err
	}

	objectWriter := client.Bucket(bucket).Object(name).NewWriter(ctx)
	runWriter, err := NewRunWriter(objectWriter)
	if err != nil {
		objectWriter.Close()
		client.Close()
		return nil, err
	}
	runWriter.DeferUntilClose(objectWriter.Close)
	runWriter.DeferUntilClose(client.Close)
	return runWriter, nil
}
