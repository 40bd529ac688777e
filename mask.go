package bodkin

// CausalMask builds a broadcast mask (pad_batches 1) with one row per query
// position, suppressing every key position the query must not attend to.
// Query q sits at absolute position keyLen-queryLen+q, so the final query
// row sees every key. queryLen must not exceed keyLen.
func CausalMask(queryLen, keyLen int) ([]uint8, error) {
	const op = "causal_mask"
	if queryLen <= 0 || keyLen <= 0 || queryLen > keyLen {
		return nil, newValidationError(op, "invalid geometry: query_len=%d key_len=%d", queryLen, keyLen)
	}
	mask := make([]uint8, queryLen*keyLen)
	offset := keyLen - queryLen
	for q := 0; q < queryLen; q++ {
		row := mask[q*keyLen : (q+1)*keyLen]
		for k := offset + q + 1; k < keyLen; k++ {
			row[k] = 1
		}
	}
	return mask, nil
}

// PaddingMask builds a per-batch mask (pad_batches len(lengths)) with one
// row per (batch, query) pair, suppressing key positions at or past each
// sequence's true length. Lengths must lie in [0, keyLen].
func PaddingMask(lengths []int, queryLen, keyLen int) ([]uint8, error) {
	const op = "padding_mask"
	if len(lengths) == 0 || queryLen <= 0 || keyLen <= 0 {
		return nil, newValidationError(op, "invalid geometry: batches=%d query_len=%d key_len=%d", len(lengths), queryLen, keyLen)
	}
	mask := make([]uint8, len(lengths)*queryLen*keyLen)
	for b, n := range lengths {
		if n < 0 || n > keyLen {
			return nil, newValidationError(op, "length %d at batch %d outside [0, %d]", n, b, keyLen)
		}
		for q := 0; q < queryLen; q++ {
			row := mask[(b*queryLen+q)*keyLen : (b*queryLen+q+1)*keyLen]
			for k := n; k < keyLen; k++ {
				row[k] = 1
			}
		}
	}
	return mask, nil
}
