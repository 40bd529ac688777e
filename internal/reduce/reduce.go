// Package reduce implements the two-level parallel reduction used by the
// softmax kernels: a butterfly pass over fixed-width lane groups followed by
// a collapse of group partials through a small shared buffer. The scheme is
// generic over any associative, commutative operator so the same code serves
// both the max pass and the sum pass.
package reduce

const (
	// GroupWidth is the number of lanes that exchange values directly in
	// one butterfly pass.
	GroupWidth = 32

	// PartialsSize is the capacity of the shared partials buffer. With
	// 32-wide groups it accommodates rows of up to 4096 elements.
	PartialsSize = 128

	// LanesPerJob is the number of lanes cooperating on one row job. Rows
	// longer than this are consumed in LanesPerJob-sized passes.
	LanesPerJob = 256

	groupsPerPass = LanesPerJob / GroupWidth
	finalGroups   = PartialsSize / GroupWidth
)

type Float interface {
	~float32 | ~float64
}

// Sum is the reduction operator for normalization denominators and
// gradient dot products.
func Sum[T Float](a, b T) T {
	return a + b
}

// Max is the reduction operator for the stability pass.
func Max[T Float](a, b T) T {
	if a < b {
		return b
	}
	return a
}

// Group reduces up to GroupWidth lane values with log2(width) butterfly
// steps at halving offsets. Each step combines lane i with lane i+offset;
// lanes whose partner falls past the end keep their value, which matches
// seeding the missing lanes with the operator identity. The reduced value
// lands in lane 0 and is returned. lanes is scratch and is overwritten.
func Group[T Float](lanes []T, op func(T, T) T) T {
	n := len(lanes)
	if n == 0 {
		panic("reduce: empty lane group")
	}
	for offset := GroupWidth / 2; offset > 0; offset /= 2 {
		for i := 0; i+offset < n; i++ {
			lanes[i] = op(lanes[i], lanes[i+offset])
		}
	}
	return lanes[0]
}

// Block reduces vals to a single value. Group leaders deposit partial
// results into the fixed shared buffer, one slot per group per pass, and a
// second butterfly pass collapses the partials. Slots no pass writes hold
// the operator identity so short or ragged rows cannot corrupt the result.
// vals is read only; partials is scratch. Rows longer than
// GroupWidth*PartialsSize elements are out of contract, callers bound row
// length before launch. An empty vals reduces to the identity.
func Block[T Float](vals []T, partials *[PartialsSize]T, op func(T, T) T, identity T) T {
	for i := range partials {
		partials[i] = identity
	}

	var lanes [GroupWidth]T
	passes := (len(vals) + LanesPerJob - 1) / LanesPerJob
	for pass := 0; pass < passes; pass++ {
		base := pass * LanesPerJob
		for g := 0; g < groupsPerPass; g++ {
			lo := base + g*GroupWidth
			if lo >= len(vals) {
				break
			}
			hi := lo + GroupWidth
			if hi > len(vals) {
				hi = len(vals)
			}
			n := copy(lanes[:], vals[lo:hi])
			for i := n; i < GroupWidth; i++ {
				lanes[i] = identity
			}
			partials[g+groupsPerPass*pass] = Group(lanes[:], op)
		}
	}

	var leaders [finalGroups]T
	for g := 0; g < finalGroups; g++ {
		leaders[g] = Group(partials[g*GroupWidth:(g+1)*GroupWidth], op)
	}
	return op(op(leaders[0], leaders[1]), op(leaders[2], leaders[3]))
}
