package preflight

import (
	"fmt"
	"path/filepath"

	"github.com/Aman-CERP/academykb/internal/index"
)

// CheckRawRoot checks that the content root exists and counts the files a
// rebuild would index. An empty root only warns.
func (c *Checker) CheckRawRoot(root string, ignoreDirs []string) CheckResult {
	result := CheckResult{
		Name:     "raw_root",
		Required: true,
	}

	files, err := index.Enumerate(root, ignoreDirs)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s is not readable", root)
		result.Details = err.Error()
		return result
	}

	result.Details = root
	if len(files) == 0 {
		result.Status = StatusWarn
		result.Message = "no supported files (.md, .txt, .html, .pdf, .docx, .csv)"
		return result
	}

	byExt := make(map[string]int)
	for _, f := range files {
		byExt[filepath.Ext(f)]++
	}
	result.Status = StatusPass
	result.Message = fmt.Sprintf("%d files in %d formats", len(files), len(byExt))
	return result
}
