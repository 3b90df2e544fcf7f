package messages

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func strptr(s string) *string { return &s }

func TestBeginFeedRoundTrip(t *testing.T) {
	m := BeginFeed{Collection: "persons", Version: "20260101_000000"}
	got, err := DecodeBeginFeed(m.Encode())
	require.NoError(t, err)
	require.Equal(t, m, got)
}

func TestCreateCollectionRoundTrip(t *testing.T) {
	m := CreateCollection{Collection: "persons", PrimaryKeyName: "id", OtherIndexNames: []string{"name", "age"}}
	got, err := DecodeCreateCollection(m.Encode())
	require.NoError(t, err)
	require.Equal(t, m, got)
}

func TestCreateCollectionRoundTripNoSecondaryIndexes(t *testing.T) {
	m := CreateCollection{Collection: "solo", PrimaryKeyName: "id"}
	got, err := DecodeCreateCollection(m.Encode())
	require.NoError(t, err)
	require.Equal(t, m.Collection, got.Collection)
	require.Equal(t, m.PrimaryKeyName, got.PrimaryKeyName)
	require.Empty(t, got.OtherIndexNames)
}

func TestStatusResponseRoundTrip(t *testing.T) {
	ok := StatusResponse{Success: true}
	got, err := DecodeStatusResponse(ok.Encode())
	require.NoError(t, err)
	require.Equal(t, ok, got)

	fail := StatusResponse{Success: false, Error: strptr("collection not found")}
	got, err = DecodeStatusResponse(fail.Encode())
	require.NoError(t, err)
	require.Equal(t, fail, got)
}

func TestQueryByPrimaryKeyRoundTrip(t *testing.T) {
	m := QueryByPrimaryKey{Collection: "persons", PrimaryKeyValues: []int64{1, 2, -5, 0}}
	got, err := DecodeQueryByPrimaryKey(m.Encode())
	require.NoError(t, err)
	require.Equal(t, m, got)
}

func TestQueryResponseRoundTrip(t *testing.T) {
	collection := "persons"
	m := QueryResponse{
		SingleAnswer: true,
		ObjectsData:  [][]byte{[]byte("alice"), []byte("bob")},
		Collection:   &collection,
	}
	got, err := DecodeQueryResponse(m.Encode())
	require.NoError(t, err)
	require.Equal(t, m.SingleAnswer, got.SingleAnswer)
	require.Equal(t, m.ObjectsData, got.ObjectsData)
	require.Equal(t, *m.Collection, *got.Collection)
}

func TestDropCollectionRoundTrip(t *testing.T) {
	m := DropCollection{Collection: "persons"}
	got, err := DecodeDropCollection(m.Encode())
	require.NoError(t, err)
	require.Equal(t, m, got)
}

func TestCollectionsDescriptionRoundTrip(t *testing.T) {
	v := "001"
	m := CollectionsDescription{
		Collections: []CollectionDescription{
			{
				Name:                 "persons",
				Count:                2,
				SizeInBytes:          1100,
				LastVersion:          &v,
				KeyNames:             []string{"id", "name", "age"},
				SegmentFileSize:      1_000_000_000,
				MaxObjectsPerSegment: 1_000_000,
			},
			{Name: "empty", LastVersion: nil, KeyNames: []string{"id"}},
		},
	}
	got, err := DecodeCollectionsDescription(m.Encode())
	require.NoError(t, err)
	require.Len(t, got.Collections, 2)
	require.Equal(t, m.Collections[0].Name, got.Collections[0].Name)
	require.Equal(t, *m.Collections[0].LastVersion, *got.Collections[0].LastVersion)
	require.Nil(t, got.Collections[1].LastVersion)
	require.Equal(t, m.Collections[1].KeyNames, got.Collections[1].KeyNames)
}
