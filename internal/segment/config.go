package segment

// Caps bundles the two segment-sizing knobs carried on CollectionMetadata:
// the item-count cap that bounds the header table, and the byte cap that
// bounds the data area.
type Caps struct {
	MaxItemsPerSegment       int
	SegmentDataCapacityBytes int
}
