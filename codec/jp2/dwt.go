package jp2

// Reversible 5/3 wavelet, applied in place over a row-major plane. Each
// level transforms the top-left low-pass region, columns first, leaving
// the low-pass half of every line at its start.

// levelSize returns the width or height of the low-pass region after n
// decomposition levels.
func levelSize(size, n int) int {
	for range n {
		size = (size + 1) / 2
	}
	return size
}

func mirror(i, n int) int {
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*(n-1) - i
		}
	}
	return i
}

// lift53 transforms the n samples of x in place and deinterleaves them
// into tmp, low-pass first.
func lift53(x, tmp []int32, n int) {
	if n == 1 {
		return
	}
	for i := 1; i < n; i += 2 {
		x[i] -= (x[mirror(i-1, n)] + x[mirror(i+1, n)]) >> 1
	}
	for i := 0; i < n; i += 2 {
		x[i] += (x[mirror(i-1, n)] + x[mirror(i+1, n)] + 2) >> 2
	}
	low := (n + 1) / 2
	for i := range n {
		if i&1 == 0 {
			tmp[i/2] = x[i]
		} else {
			tmp[low+i/2] = x[i]
		}
	}
	copy(x, tmp[:n])
}

// unlift53 reverses lift53.
func unlift53(x, tmp []int32, n int) {
	if n == 1 {
		return
	}
	low := (n + 1) / 2
	for i := range n {
		if i&1 == 0 {
			tmp[i] = x[i/2]
		} else {
			tmp[i] = x[low+i/2]
		}
	}
	copy(x, tmp[:n])
	for i := 0; i < n; i += 2 {
		x[i] -= (x[mirror(i-1, n)] + x[mirror(i+1, n)] + 2) >> 2
	}
	for i := 1; i < n; i += 2 {
		x[i] += (x[mirror(i-1, n)] + x[mirror(i+1, n)]) >> 1
	}
}

func forwardDWT(p []int32, w, h, levels int) {
	line := make([]int32, max(w, h))
	tmp := make([]int32, max(w, h))
	for n := range levels {
		lw, lh := levelSize(w, n), levelSize(h, n)
		for x := range lw {
			for y := range lh {
				line[y] = p[y*w+x]
			}
			lift53(line, tmp, lh)
			for y := range lh {
				p[y*w+x] = line[y]
			}
		}
		for y := range lh {
			lift53(p[y*w:y*w+lw], tmp, lw)
		}
	}
}

func inverseDWT(p []int32, w, h, levels int) {
	line := make([]int32, max(w, h))
	tmp := make([]int32, max(w, h))
	for n := levels - 1; n >= 0; n-- {
		lw, lh := levelSize(w, n), levelSize(h, n)
		for y := range lh {
			unlift53(p[y*w:y*w+lw], tmp, lw)
		}
		for x := range lw {
			for y := range lh {
				line[y] = p[y*w+x]
			}
			unlift53(line, tmp, lh)
			for y := range lh {
				p[y*w+x] = line[y]
			}
		}
	}
}
