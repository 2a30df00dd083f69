package mesh

// cornerOffsets holds the unit offsets of the eight cell corners. Corner i
// sits at (i&1, (i>>1)&1, (i>>2)&1).
var cornerOffsets = [8][3]int{
	{0, 0, 0},
	{1, 0, 0},
	{0, 1, 0},
	{1, 1, 0},
	{0, 0, 1},
	{1, 0, 1},
	{0, 1, 1},
	{1, 1, 1},
}

// cellEdges lists the twelve cell edges as corner pairs: four on the z = 0
// face, four on the z = 1 face, then the four edges along z.
var cellEdges = [12][2]int{
	{0, 1}, {1, 3}, {3, 2}, {2, 0},
	{4, 5}, {5, 7}, {7, 6}, {6, 4},
	{0, 4}, {1, 5}, {3, 7}, {2, 6},
}

// quadRings lists, per axis, the offsets of the four cells around a grid edge
// that starts at the sample (x, y, z). The cells are given relative to that
// sample, in counter-clockwise order when viewed from the positive end of the
// axis.
var quadRings = [3][4][3]int{
	// x: cells (x, y-j, z-k), ordered in the yz plane.
	{{0, -1, -1}, {0, 0, -1}, {0, 0, 0}, {0, -1, 0}},
	// y: cells (x-i, y, z-k), ordered in the zx plane.
	{{-1, 0, -1}, {-1, 0, 0}, {0, 0, 0}, {0, 0, -1}},
	// z: cells (x-i, y-j, z), ordered in the xy plane.
	{{-1, -1, 0}, {0, -1, 0}, {0, 0, 0}, {-1, 0, 0}},
}
