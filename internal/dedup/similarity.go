package dedup

// Similarity returns a ratio in [0, 1]: twice the length of the longest
// common subsequence over the combined length. 1 means identical, 0 means
// nothing shared.
func Similarity(a, b string) float64 {
	if a == b {
		if len(a) == 0 {
			return 1
		}
		return 1
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	m := lcsLength(ra, rb)
	return 2 * float64(m) / float64(len(ra)+len(rb))
}

// lcsLength computes the longest-common-subsequence length with two rolling
// rows; texts here are bounded previews, not documents.
func lcsLength(a, b []rune) int {
	if len(b) > len(a) {
		a, b = b, a
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
			} else if prev[j] >= cur[j-1] {
				cur[j] = prev[j]
			} else {
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
