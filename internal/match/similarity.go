package match

// levenshtein computes edit distance (insertion, deletion, substitution cost 1).
func levenshtein(a, b string) int {
	ar := []rune(a)
	br := []rune(b)
	n, m := len(ar), len(br)
	if n == 0 {
		return m
	}
	if m == 0 {
		return n
	}
	dp := make([]int, m+1)
	for j := 0; j <= m; j++ {
		dp[j] = j
	}
	for i := 1; i <= n; i++ {
		prev := dp[0]
		dp[0] = i
		for j := 1; j <= m; j++ {
			tmp := dp[j]
			cost := 0
			if ar[i-1] != br[j-1] {
				cost = 1
			}
			ins := dp[j] + 1
			del := dp[j-1] + 1
			sub := prev + cost
			dp[j] = min3(ins, del, sub)
			prev = tmp
		}
	}
	return dp[m]
}

func min3(a, b, c int) int {
	if a < b {
		if a < c {
			return a
		}
		return c
	}
	if b < c {
		return b
	}
	return c
}

// Similarity is the edit-distance ratio in 0..1, 1 meaning equal strings.
func Similarity(a, b string) float64 {
	n := len([]rune(a))
	if m := len([]rune(b)); m > n {
		n = m
	}
	if n == 0 {
		return 1
	}
	return 1 - float64(levenshtein(a, b))/float64(n)
}

// windowScore compares every run of up to four consecutive tokens against a
// name key and keeps the best ratio. Filenames glue name parts together in
// unpredictable ways ("MuellerMike_Abgabe" vs "Mueller_Mike_Abgabe"), so
// single tokens alone are not enough.
func windowScore(toks []string, key string) float64 {
	if key == "" || len(toks) == 0 {
		return 0
	}
	best := 0.0
	for i := range toks {
		joined := ""
		for j := i; j < len(toks) && j < i+4; j++ {
			joined += toks[j]
			if s := Similarity(joined, key); s > best {
				best = s
			}
		}
	}
	return best
}
