package skypair

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	fitsBlockSize  = 2880
	fitsRecordSize = 80
)

// ErrCompressedImage is returned for tile-compressed (ZIMAGE) HDUs.
var ErrCompressedImage = errors.New("tile-compressed FITS images are not supported")

// FitsMetadata holds parsed FITS header key-value pairs.
type FitsMetadata struct {
	Headers map[string]string
}

// NewFitsMetadata creates an empty FitsMetadata.
func NewFitsMetadata() *FitsMetadata {
	return &FitsMetadata{Headers: make(map[string]string)}
}

func (m *FitsMetadata) GetString(key string) string {
	if v, ok := m.Headers[strings.ToUpper(key)]; ok {
		return v
	}
	return ""
}

func (m *FitsMetadata) GetDouble(key string) (float64, bool) {
	v, ok := m.Headers[strings.ToUpper(key)]
	if !ok {
		return 0, false
	}
	// Fortran style exponents are legal in FITS.
	d, err := strconv.ParseFloat(strings.Replace(strings.TrimSpace(v), "D", "E", 1), 64)
	if err != nil {
		return 0, false
	}
	return d, true
}

func (m *FitsMetadata) GetInt(key string) (int, bool) {
	v, ok := m.Headers[strings.ToUpper(key)]
	if !ok {
		return 0, false
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return i, true
}

func (m *FitsMetadata) GetDateTime(key string) (time.Time, bool) {
	v, ok := m.Headers[strings.ToUpper(key)]
	if !ok {
		return time.Time{}, false
	}
	v = strings.TrimSpace(v)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func (m *FitsMetadata) ObjectName() string    { return m.GetString("OBJECT") }
func (m *FitsMetadata) Filter() string        { return m.GetString("FILTER") }
func (m *FitsMetadata) TelescopeName() string { return m.GetString("TELESCOP") }

func (m *FitsMetadata) ExposureTime() (float64, bool) {
	if v, ok := m.GetDouble("EXPTIME"); ok {
		return v, true
	}
	return m.GetDouble("EXPOSURE")
}

func (m *FitsMetadata) ObservationTime() (time.Time, bool) { return m.GetDateTime("DATE-OBS") }

// FitsImageData holds one decoded FITS image HDU. Pixel values are physical
// (BZERO and BSCALE applied); undefined pixels are NaN.
type FitsImageData struct {
	Data     []float32
	Width    int
	Height   int
	Bitpix   int
	HDU      int
	Metadata *FitsMetadata
}

// ToMat copies the pixel data into a Mat.
func (f *FitsImageData) ToMat() Mat {
	return NewMatFromData(f.Height, f.Width, f.Data)
}

// ReadFits reads the first image HDU of a file. Empty primary HDUs are
// skipped, so survey products that keep the image in an extension load
// directly.
func ReadFits(filePath string) (*FitsImageData, error) {
	return ReadFitsHDU(filePath, -1)
}

// ReadFitsHDU reads the HDU at index (0 is the primary HDU). A negative index
// selects the first image HDU.
func ReadFitsHDU(filePath string, index int) (*FitsImageData, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("opening FITS file: %w", err)
	}
	defer f.Close()
	return readFitsFromReader(f, index)
}

// ReadFitsFromBytes reads the first image HDU from a byte slice.
func ReadFitsFromBytes(data []byte) (*FitsImageData, error) {
	return readFitsFromReader(bytes.NewReader(data), -1)
}

type fitsHeader struct {
	metadata *FitsMetadata
	bitpix   int
	naxis    []int
	pcount   int
	gcount   int
	bzero    float64
	bscale   float64
	blank    *int64
	isTable  bool
	zimage   bool
}

func (h *fitsHeader) isImage() bool {
	return !h.isTable && len(h.naxis) >= 2 && h.naxis[0] > 0 && h.naxis[1] > 0
}

// dataSize is the unpadded size of the data unit in bytes.
func (h *fitsHeader) dataSize() int64 {
	if len(h.naxis) == 0 {
		return 0
	}
	elems := int64(1)
	for _, n := range h.naxis {
		elems *= int64(n)
	}
	bytesPerElem := int64(h.bitpix)
	if bytesPerElem < 0 {
		bytesPerElem = -bytesPerElem
	}
	bytesPerElem /= 8
	return bytesPerElem * int64(h.gcount) * (int64(h.pcount) + elems)
}

func readFitsFromReader(r io.Reader, index int) (*FitsImageData, error) {
	for hdu := 0; ; hdu++ {
		h, err := readFitsHeader(r)
		if err == io.EOF {
			if index < 0 {
				return nil, fmt.Errorf("no image HDU found in %d HDUs", hdu)
			}
			return nil, fmt.Errorf("HDU %d not found, file has %d HDUs", index, hdu)
		}
		if err != nil {
			return nil, fmt.Errorf("reading header of HDU %d: %w", hdu, err)
		}

		size := h.dataSize()
		padded := (size + fitsBlockSize - 1) / fitsBlockSize * fitsBlockSize

		if hdu == index || (index < 0 && (h.isImage() || h.zimage)) {
			if h.zimage {
				return nil, fmt.Errorf("HDU %d: %w", hdu, ErrCompressedImage)
			}
			if !h.isImage() {
				return nil, fmt.Errorf("HDU %d is not an image: NAXIS=%v", hdu, h.naxis)
			}
			raw := make([]byte, size)
			if _, err := io.ReadFull(r, raw); err != nil {
				return nil, fmt.Errorf("reading pixel data of HDU %d: %w", hdu, err)
			}
			data, err := decodeFitsPixels(raw, h)
			if err != nil {
				return nil, fmt.Errorf("HDU %d: %w", hdu, err)
			}
			return &FitsImageData{
				Data:     data,
				Width:    h.naxis[0],
				Height:   h.naxis[1],
				Bitpix:   h.bitpix,
				HDU:      hdu,
				Metadata: h.metadata,
			}, nil
		}

		if _, err := io.CopyN(io.Discard, r, padded); err != nil {
			return nil, fmt.Errorf("skipping data of HDU %d: %w", hdu, err)
		}
	}
}

// readFitsHeader reads header blocks up to and including the END card. It
// returns io.EOF if the stream ends cleanly before a new header.
func readFitsHeader(r io.Reader) (*fitsHeader, error) {
	h := &fitsHeader{
		metadata: NewFitsMetadata(),
		gcount:   1,
		bscale:   1,
	}
	block := make([]byte, fitsBlockSize)
	naxis := 0
	axes := map[int]int{}

	for first := true; ; first = false {
		if _, err := io.ReadFull(r, block); err != nil {
			if first && err == io.EOF {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("reading FITS header block: %w", err)
		}
		for i := 0; i < fitsBlockSize/fitsRecordSize; i++ {
			record := string(block[i*fitsRecordSize : (i+1)*fitsRecordSize])
			keyword := strings.TrimSpace(record[:8])

			if keyword == "END" {
				h.naxis = make([]int, naxis)
				for n := 1; n <= naxis; n++ {
					h.naxis[n-1] = axes[n]
				}
				return h, nil
			}
			if record[8] != '=' || record[9] != ' ' {
				continue
			}

			rawValue := cardValue(record[10:])
			if parsed := parseFitsValue(rawValue); keyword != "" && parsed != "" {
				h.metadata.Headers[strings.ToUpper(keyword)] = parsed
			}

			switch {
			case keyword == "XTENSION":
				v := parseFitsValue(rawValue)
				h.isTable = v == "BINTABLE" || v == "TABLE"
			case keyword == "BITPIX":
				h.bitpix, _ = strconv.Atoi(rawValue)
			case keyword == "NAXIS":
				naxis, _ = strconv.Atoi(rawValue)
			case strings.HasPrefix(keyword, "NAXIS"):
				if n, err := strconv.Atoi(keyword[len("NAXIS"):]); err == nil {
					axes[n], _ = strconv.Atoi(rawValue)
				}
			case keyword == "PCOUNT":
				h.pcount, _ = strconv.Atoi(rawValue)
			case keyword == "GCOUNT":
				h.gcount, _ = strconv.Atoi(rawValue)
			case keyword == "BZERO":
				h.bzero, _ = strconv.ParseFloat(rawValue, 64)
			case keyword == "BSCALE":
				h.bscale, _ = strconv.ParseFloat(rawValue, 64)
			case keyword == "BLANK":
				if v, err := strconv.ParseInt(rawValue, 10, 64); err == nil {
					h.blank = &v
				}
			case keyword == "ZIMAGE":
				h.zimage = rawValue == "T"
			}
		}
	}
}

func decodeFitsPixels(raw []byte, h *fitsHeader) ([]float32, error) {
	numPixels := h.naxis[0] * h.naxis[1]
	pixels := make([]float32, numPixels)

	physical := func(v float64) float32 { return float32(v*h.bscale + h.bzero) }
	integer := func(i int, v int64) {
		if h.blank != nil && v == *h.blank {
			pixels[i] = float32(math.NaN())
			return
		}
		pixels[i] = physical(float64(v))
	}

	// Only the first plane of a cube is used.
	switch h.bitpix {
	case 8:
		for i := 0; i < numPixels; i++ {
			integer(i, int64(raw[i]))
		}
	case 16:
		for i := 0; i < numPixels; i++ {
			integer(i, int64(int16(binary.BigEndian.Uint16(raw[i*2:]))))
		}
	case 32:
		for i := 0; i < numPixels; i++ {
			integer(i, int64(int32(binary.BigEndian.Uint32(raw[i*4:]))))
		}
	case 64:
		for i := 0; i < numPixels; i++ {
			integer(i, int64(binary.BigEndian.Uint64(raw[i*8:])))
		}
	case -32:
		for i := 0; i < numPixels; i++ {
			pixels[i] = physical(float64(math.Float32frombits(binary.BigEndian.Uint32(raw[i*4:]))))
		}
	case -64:
		for i := 0; i < numPixels; i++ {
			pixels[i] = physical(math.Float64frombits(binary.BigEndian.Uint64(raw[i*8:])))
		}
	default:
		return nil, fmt.Errorf("unsupported BITPIX: %d", h.bitpix)
	}
	return pixels, nil
}

// cardValue strips the trailing comment from the value field of a card,
// leaving slashes inside quoted strings alone.
func cardValue(field string) string {
	field = strings.TrimSpace(field)
	if strings.HasPrefix(field, "'") {
		for i := 1; i < len(field); i++ {
			if field[i] != '\'' {
				continue
			}
			if i+1 < len(field) && field[i+1] == '\'' {
				i++
				continue
			}
			return field[:i+1]
		}
		return field
	}
	return strings.TrimSpace(strings.SplitN(field, "/", 2)[0])
}

func parseFitsValue(rawValue string) string {
	if rawValue == "" {
		return ""
	}
	if rawValue == "T" {
		return "True"
	}
	if rawValue == "F" {
		return "False"
	}
	if strings.HasPrefix(rawValue, "'") {
		endQuote := strings.LastIndex(rawValue, "'")
		if endQuote > 0 {
			return strings.ReplaceAll(strings.TrimRight(rawValue[1:endQuote], " "), "''", "'")
		}
		return strings.TrimLeft(strings.TrimRight(rawValue, " "), "'")
	}
	return rawValue
}
