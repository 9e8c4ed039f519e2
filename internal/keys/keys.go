// Package keys encodes catalogue entities into single-table partition and sort keys.
// Every read, write and delete path builds its keys here.
package keys

import (
	"strconv"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	AttrPK = "pk"
	AttrSK = "sk"

	MoviePrefix = "m"
	CastPrefix  = "c"
	AwardPrefix = "w"

	// MovieSortKey is the fixed sort key carried by every movie row.
	MovieSortKey = "xxxx"
)

// Key is the primary key of a single row.
type Key struct {
	PK string
	SK string
}

// Item returns the key as a DynamoDB attribute map.
func (k Key) Item() map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		AttrPK: &types.AttributeValueMemberS{Value: k.PK},
		AttrSK: &types.AttributeValueMemberS{Value: k.SK},
	}
}

func (k Key) String() string {
	return k.PK + "/" + k.SK
}

// Range selects the rows of one partition, optionally narrowed to an exact sort key.
type Range struct {
	PK string
	SK string
}

// HasSK reports whether the range is narrowed to a single sort key.
func (r Range) HasSK() bool {
	return r.SK != ""
}

func Movie(id int) Key {
	return Key{PK: MoviePrefix + strconv.Itoa(id), SK: MovieSortKey}
}

// MovieScan returns the pk prefix and sort key that identify movie rows during a table scan.
func MovieScan() (prefix, sk string) {
	return MoviePrefix, MovieSortKey
}

func CastPartition(movieID int) string {
	return CastPrefix + strconv.Itoa(movieID)
}

func CastMember(movieID, actorID int) Key {
	return Key{PK: CastPartition(movieID), SK: strconv.Itoa(actorID)}
}

// AwardPartition returns the partition holding awards for a movie or an actor.
//
// Movie and actor subjects share one numeric namespace: awards for movie 7 and actor 7 land
// in the same partition and cannot be told apart by key. Existing rows depend on this format,
// so adding a subject prefix would be a breaking change for stored data.
func AwardPartition(subjectID int) string {
	return AwardPrefix + strconv.Itoa(subjectID)
}

func Award(subjectID int, body string) Key {
	return Key{PK: AwardPartition(subjectID), SK: body}
}

// AwardRange selects the awards of a subject, narrowed to one award body when body is set.
func AwardRange(subjectID int, body string) Range {
	return Range{PK: AwardPartition(subjectID), SK: body}
}

// CastRange selects every cast row of a movie.
func CastRange(movieID int) Range {
	return Range{PK: CastPartition(movieID)}
}
