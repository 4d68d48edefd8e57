package pdfdoc

import (
	"bytes"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildPagePDF creates a single page pdf with correct xref offsets.
func buildPagePDF(text string) []byte {
	stream := "BT\n/F1 12 Tf\n72 720 Td\n(" + text + ") Tj\nET"

	var b strings.Builder
	b.WriteString("%PDF-1.4\n")

	offsets := make([]int, 6)

	offsets[1] = b.Len()
	b.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	offsets[2] = b.Len()
	b.WriteString("2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n")

	offsets[3] = b.Len()
	b.WriteString("3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>\nendobj\n")

	offsets[4] = b.Len()
	b.WriteString("4 0 obj\n<< /Length " + strconv.Itoa(len(stream)) + " >>\nstream\n")
	b.WriteString(stream)
	b.WriteString("\nendstream\nendobj\n")

	offsets[5] = b.Len()
	b.WriteString("5 0 obj\n<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>\nendobj\n")

	xrefOffset := b.Len()
	b.WriteString("xref\n0 6\n")
	b.WriteString("0000000000 65535 f \n")
	for i := 1; i <= 5; i++ {
		b.WriteString(padOffset(offsets[i]))
		b.WriteString(" 00000 n \n")
	}
	b.WriteString("trailer\n<< /Size 6 /Root 1 0 R >>\nstartxref\n")
	b.WriteString(strconv.Itoa(xrefOffset))
	b.WriteString("\n%%EOF\n")

	return []byte(b.String())
}

func padOffset(n int) string {
	s := strconv.Itoa(n)
	for len(s) < 10 {
		s = "0" + s
	}
	return s
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(buildPagePDF("page one")))
	require.Error(t, Validate([]byte("<svg/>")))
}

func TestMerge(t *testing.T) {
	pages := [][]byte{
		buildPagePDF("page one"),
		buildPagePDF("page two"),
		buildPagePDF("page three"),
	}

	var out bytes.Buffer
	require.NoError(t, Merge(pages, &out))

	n, err := PageCount(out.Bytes())
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestMergeEdgeCases(t *testing.T) {
	require.ErrorIs(t, Merge(nil, &bytes.Buffer{}), ErrNoPages)

	single := buildPagePDF("only")
	var out bytes.Buffer
	require.NoError(t, Merge([][]byte{single}, &out))
	require.Equal(t, single, out.Bytes())
}
