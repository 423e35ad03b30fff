package collage

import (
	"math"

	"github.com/desertthunder/albumwall/internal/models"
)

// ComputeGridDimensions picks the arrangement for n covers.
//
// It starts from the largest square k*k <= n and prefers the k x (k+1) rectangle when n
// can fill it. Count is the number of cells filled; covers beyond it are left out.
func ComputeGridDimensions(n int) models.GridLayout {
	if n <= 0 {
		return models.GridLayout{Type: models.LayoutEmpty}
	}

	k := int(math.Sqrt(float64(n)))
	for (k+1)*(k+1) <= n {
		k++
	}
	for k*k > n {
		k--
	}

	if k*(k+1) <= n {
		return models.GridLayout{Rows: k, Cols: k + 1, Count: k * (k + 1), Type: models.LayoutRectangle}
	}
	return models.GridLayout{Rows: k, Cols: k, Count: k * k, Type: models.LayoutSquare}
}

// cellSizes maps a column count to a cell edge in pixels so large grids stay a sane size.
var cellSizes = map[int]int{
	1:  600,
	2:  400,
	3:  300,
	4:  250,
	5:  220,
	6:  200,
	7:  180,
	8:  160,
	9:  140,
	10: 128,
}

// CellSize returns the cell edge in pixels for a grid with cols columns.
func CellSize(cols int) int {
	if size, ok := cellSizes[cols]; ok {
		return size
	}
	if cols < 1 {
		return cellSizes[1]
	}
	return 100
}
