package chunk

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/giak/mnemolite/internal/fingerprint"
)

// MarkdownChunkerOptions configures the markdown chunker behavior.
type MarkdownChunkerOptions struct {
	MaxChunkTokens int
	OverlapTokens  int
}

// MarkdownChunker implements header-based Markdown chunking.
type MarkdownChunker struct {
	options MarkdownChunkerOptions
}

var (
	headerPattern         = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+)$`)
	frontmatterPattern    = regexp.MustCompile(`(?s)^---\n(.+?)\n---\n*`)
	codeBlockPattern      = regexp.MustCompile("(?s)```[^`]*```")
	mdxSelfClosingPattern = regexp.MustCompile(`<[A-Z][a-zA-Z0-9]*[^>]*/\s*>`)
	tablePattern          = regexp.MustCompile(`(?m)^\|.+\|$(\n^\|[-:|]+\|$)?(\n^\|.+\|$)*`)
)

// NewMarkdownChunker creates a new markdown chunker with default options.
func NewMarkdownChunker() *MarkdownChunker {
	return NewMarkdownChunkerWithOptions(MarkdownChunkerOptions{})
}

// NewMarkdownChunkerWithOptions creates a new markdown chunker with custom options.
func NewMarkdownChunkerWithOptions(opts MarkdownChunkerOptions) *MarkdownChunker {
	if opts.MaxChunkTokens == 0 {
		opts.MaxChunkTokens = DefaultMaxChunkTokens
	}
	if opts.OverlapTokens == 0 {
		opts.OverlapTokens = DefaultOverlapTokens
	}
	return &MarkdownChunker{options: opts}
}

// Close is a no-op; MarkdownChunker is stateless.
func (c *MarkdownChunker) Close() {}

// SupportedExtensions returns file extensions this chunker handles.
func (c *MarkdownChunker) SupportedExtensions() []string {
	return []string{".md", ".markdown", ".mdx"}
}

// Chunk splits a markdown file into semantic chunks, one per header
// section (falling back to paragraph splitting when there are no headers).
func (c *MarkdownChunker) Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error) {
	content := string(file.Content)
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	var chunks []*Chunk
	now := time.Now()
	remainingContent := content

	if frontmatterMatch := frontmatterPattern.FindStringSubmatch(remainingContent); frontmatterMatch != nil {
		frontmatter := frontmatterMatch[0]
		chunks = append(chunks, c.createFrontmatterChunk(file, frontmatter, now))
		remainingContent = remainingContent[len(frontmatter):]
	}

	sections := c.parseSections(remainingContent)

	if len(sections) == 0 {
		paragraphChunks := c.chunkByParagraphs(file, remainingContent, "", 1, now)
		chunks = append(chunks, paragraphChunks...)
		return chunks, nil
	}

	baseLineOffset := 1
	if len(chunks) > 0 {
		if t, _ := chunks[0].Metadata["type"].(string); t == "frontmatter" {
			baseLineOffset = strings.Count(content[:len(content)-len(remainingContent)], "\n") + 1
		}
	}

	for _, sec := range sections {
		chunks = append(chunks, c.createSectionChunks(file, sec, baseLineOffset, now)...)
	}

	return chunks, nil
}

type section struct {
	headerLevel int
	headerTitle string
	headerPath  string
	content     string
	startLine   int
}

func (c *MarkdownChunker) parseSections(content string) []*section {
	lines := strings.Split(content, "\n")
	var sections []*section
	headerStack := make([]string, 6)

	var currentSection *section
	var contentBuilder strings.Builder

	for lineNum, line := range lines {
		if match := headerPattern.FindStringSubmatch(line); match != nil {
			if currentSection != nil {
				currentSection.content = contentBuilder.String()
				sections = append(sections, currentSection)
				contentBuilder.Reset()
			}

			level := len(match[1])
			title := strings.TrimSpace(match[2])

			headerStack[level-1] = title
			for i := level; i < 6; i++ {
				headerStack[i] = ""
			}

			var pathParts []string
			for i := 0; i < level; i++ {
				if headerStack[i] != "" {
					pathParts = append(pathParts, headerStack[i])
				}
			}
			headerPath := strings.Join(pathParts, " > ")

			currentSection = &section{
				headerLevel: level,
				headerTitle: title,
				headerPath:  headerPath,
				startLine:   lineNum,
			}
			contentBuilder.WriteString(line)
			contentBuilder.WriteString("\n")
		} else {
			contentBuilder.WriteString(line)
			contentBuilder.WriteString("\n")
		}
	}

	if currentSection != nil {
		currentSection.content = contentBuilder.String()
		sections = append(sections, currentSection)
	}

	return sections
}

func mdQualifiedName(moduleName, name string) string {
	return qualifiedName(moduleName, name)
}

func (c *MarkdownChunker) createFrontmatterChunk(file *FileInput, content string, now time.Time) *Chunk {
	lineCount := strings.Count(content, "\n")
	if lineCount == 0 {
		lineCount = 1
	}
	moduleName := modulePath(file.Path)

	return &Chunk{
		ChunkID:       generateChunkID(file.Repository, file.Path, "frontmatter"),
		Repository:    file.Repository,
		FilePath:      file.Path,
		Language:      "markdown",
		Kind:          KindModule,
		Name:          "frontmatter",
		QualifiedName: mdQualifiedName(moduleName, "frontmatter"),
		StartLine:     1,
		EndLine:       lineCount,
		SourceCode:    content,
		ContentHash:   string(fingerprint.HashString(content)),
		Metadata: map[string]any{
			"type":          "frontmatter",
			"header_path":   "",
			"header_level":  "0",
			"content_hash":  string(fingerprint.HashString(content)),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (c *MarkdownChunker) createSectionChunks(file *FileInput, sec *section, baseLineOffset int, now time.Time) []*Chunk {
	content := strings.TrimRight(sec.content, "\n")

	trimmedContent := strings.TrimSpace(content)
	lines := strings.Split(trimmedContent, "\n")
	if len(lines) <= 1 && headerPattern.MatchString(trimmedContent) {
		return []*Chunk{}
	}

	tokens := estimateTokens(content)
	moduleName := modulePath(file.Path)

	if tokens <= c.options.MaxChunkTokens {
		startLine := baseLineOffset + sec.startLine
		endLine := startLine + strings.Count(content, "\n")

		name := sec.headerTitle
		if name == "" {
			name = "section"
		}

		return []*Chunk{{
			ChunkID:       generateChunkID(file.Repository, file.Path, sec.headerPath+"#"+name),
			Repository:    file.Repository,
			FilePath:      file.Path,
			Language:      "markdown",
			Kind:          KindModule,
			Name:          name,
			QualifiedName: mdQualifiedName(moduleName, name),
			StartLine:     startLine,
			EndLine:       endLine,
			SourceCode:    content,
			ContentHash:   string(fingerprint.HashString(content)),
			Metadata: map[string]any{
				"header_path":   sec.headerPath,
				"header_level":  strconv.Itoa(sec.headerLevel),
				"section_title": sec.headerTitle,
				"content_hash":  string(fingerprint.HashString(content)),
			},
			CreatedAt: now,
			UpdatedAt: now,
		}}
	}

	startLine := baseLineOffset + sec.startLine
	return c.splitLargeSection(file, sec, content, startLine, now)
}

func (c *MarkdownChunker) splitLargeSection(file *FileInput, sec *section, content string, startLine int, now time.Time) []*Chunk {
	atomicBlocks := c.findAtomicBlocks(content)
	paragraphs := c.splitByParagraphs(content, atomicBlocks)

	var chunks []*Chunk
	var currentContent strings.Builder
	currentStartLine := startLine
	lineCount := 0

	for i, para := range paragraphs {
		paraLines := strings.Count(para, "\n") + 1
		paraTokens := estimateTokens(para)
		currentTokens := estimateTokens(currentContent.String())

		if currentContent.Len() > 0 && currentTokens+paraTokens > c.options.MaxChunkTokens {
			chunks = append(chunks, c.createChunkFromContent(file, sec, currentContent.String(), currentStartLine, lineCount, len(chunks), now))

			currentContent.Reset()
			currentStartLine = startLine + lineCount

			if i > 0 {
				currentContent.WriteString("<!-- Section: ")
				currentContent.WriteString(sec.headerPath)
				currentContent.WriteString(" -->\n\n")
			}
		}

		currentContent.WriteString(para)
		currentContent.WriteString("\n\n")
		lineCount += paraLines + 1
	}

	if currentContent.Len() > 0 {
		chunks = append(chunks, c.createChunkFromContent(file, sec, currentContent.String(), currentStartLine, lineCount, len(chunks), now))
	}

	return chunks
}

func (c *MarkdownChunker) findAtomicBlocks(content string) [][]int {
	var blocks [][]int
	blocks = append(blocks, codeBlockPattern.FindAllStringIndex(content, -1)...)
	blocks = append(blocks, tablePattern.FindAllStringIndex(content, -1)...)
	blocks = append(blocks, mdxSelfClosingPattern.FindAllStringIndex(content, -1)...)
	blocks = append(blocks, c.findMDXBlockComponents(content)...)
	return blocks
}

func (c *MarkdownChunker) findMDXBlockComponents(content string) [][]int {
	var locs [][]int

	openTagPattern := regexp.MustCompile(`<([A-Z][a-zA-Z0-9]*)[^/>]*>`)
	matches := openTagPattern.FindAllStringSubmatchIndex(content, -1)

	for _, match := range matches {
		if len(match) >= 4 {
			tagName := content[match[2]:match[3]]
			closeTag := "</" + tagName + ">"
			startPos := match[0]

			closePos := strings.Index(content[match[1]:], closeTag)
			if closePos != -1 {
				endPos := match[1] + closePos + len(closeTag)
				locs = append(locs, []int{startPos, endPos})
			}
		}
	}

	return locs
}

func (c *MarkdownChunker) splitByParagraphs(content string, atomicBlocks [][]int) []string {
	parts := strings.Split(content, "\n\n")

	var paragraphs []string
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			paragraphs = append(paragraphs, trimmed)
		}
	}

	return c.mergeAtomicBlocks(paragraphs)
}

func (c *MarkdownChunker) mergeAtomicBlocks(paragraphs []string) []string {
	var result []string
	var inCodeBlock bool
	var codeBlockBuilder strings.Builder

	for _, para := range paragraphs {
		if inCodeBlock {
			codeBlockBuilder.WriteString("\n\n")
			codeBlockBuilder.WriteString(para)
			if strings.Contains(para, "```") {
				result = append(result, codeBlockBuilder.String())
				codeBlockBuilder.Reset()
				inCodeBlock = false
			}
			continue
		}

		openCount := strings.Count(para, "```")
		if openCount > 0 && openCount%2 == 1 {
			inCodeBlock = true
			codeBlockBuilder.WriteString(para)
			continue
		}

		result = append(result, para)
	}

	if inCodeBlock {
		result = append(result, codeBlockBuilder.String())
	}

	return result
}

func (c *MarkdownChunker) createChunkFromContent(file *FileInput, sec *section, content string, startLine, lineCount, index int, now time.Time) *Chunk {
	content = strings.TrimRight(content, "\n ")
	moduleName := modulePath(file.Path)
	name := sec.headerTitle
	if name == "" {
		name = "section"
	}
	partName := name
	if index > 0 {
		partName = name + "_part" + strconv.Itoa(index+1)
	}

	return &Chunk{
		ChunkID:       generateChunkID(file.Repository, file.Path, sec.headerPath+"#"+partName),
		Repository:    file.Repository,
		FilePath:      file.Path,
		Language:      "markdown",
		Kind:          KindModule,
		Name:          partName,
		QualifiedName: mdQualifiedName(moduleName, partName),
		StartLine:     startLine,
		EndLine:       startLine + lineCount,
		SourceCode:    content,
		ContentHash:   string(fingerprint.HashString(content)),
		Metadata: map[string]any{
			"header_path":   sec.headerPath,
			"header_level":  strconv.Itoa(sec.headerLevel),
			"section_title": sec.headerTitle,
			"content_hash":  string(fingerprint.HashString(content)),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (c *MarkdownChunker) chunkByParagraphs(file *FileInput, content, headerPath string, startLine int, now time.Time) []*Chunk {
	paragraphs := strings.Split(content, "\n\n")
	moduleName := modulePath(file.Path)

	var chunks []*Chunk
	var currentContent strings.Builder
	currentStartLine := startLine
	lineCount := 0

	flush := func() {
		if currentContent.Len() == 0 {
			return
		}
		finalContent := currentContent.String()
		name := "paragraph_" + strconv.Itoa(len(chunks)+1)
		chunks = append(chunks, &Chunk{
			ChunkID:       generateChunkID(file.Repository, file.Path, name),
			Repository:    file.Repository,
			FilePath:      file.Path,
			Language:      "markdown",
			Kind:          KindModule,
			Name:          name,
			QualifiedName: mdQualifiedName(moduleName, name),
			StartLine:     currentStartLine,
			EndLine:       currentStartLine + lineCount,
			SourceCode:    finalContent,
			ContentHash:   string(fingerprint.HashString(finalContent)),
			Metadata: map[string]any{
				"header_path":   headerPath,
				"header_level":  "0",
				"section_title": "",
				"content_hash":  string(fingerprint.HashString(finalContent)),
			},
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	for _, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		paraLines := strings.Count(para, "\n") + 1
		paraTokens := estimateTokens(para)
		currentTokens := estimateTokens(currentContent.String())

		if currentContent.Len() > 0 && currentTokens+paraTokens > c.options.MaxChunkTokens {
			flush()
			currentContent.Reset()
			currentStartLine = startLine + lineCount
		}

		if currentContent.Len() > 0 {
			currentContent.WriteString("\n\n")
		}
		currentContent.WriteString(para)
		lineCount += paraLines + 1
	}

	flush()

	return chunks
}
