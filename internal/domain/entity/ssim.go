package entity

// SSIMMap карта локального SSIM, одно значение на окно.
// Rows = (H-Window)/Stride+1, Cols = (W-Window)/Stride+1.
type SSIMMap struct {
	Rows   int
	Cols   int
	Window int
	Stride int
	Values []float64 // построчно, значения в [-1, 1]
}

// SSIMGridSize размер сетки SSIM для изображения width x height
func SSIMGridSize(width, height, window, stride int) (rows, cols int) {
	if window <= 0 || stride <= 0 || width < window || height < window {
		return 0, 0
	}
	return (height-window)/stride + 1, (width-window)/stride + 1
}

// At значение окна (row, col)
func (m *SSIMMap) At(row, col int) float64 {
	return m.Values[row*m.Cols+col]
}

// Mean среднее значение карты
func (m *SSIMMap) Mean() float64 {
	if len(m.Values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range m.Values {
		sum += v
	}
	return sum / float64(len(m.Values))
}
