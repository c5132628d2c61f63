package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultTemplateFile 是配置模板文件的默认位置。
const DefaultTemplateFile = "template.env"

// TemplateItem 是模板中的一个配置项，Comment 来自紧邻的 ## 注释行。
type TemplateItem struct {
	Key     string `json:"key"`
	Value   string `json:"value"`
	Comment string `json:"comment"`
}

// Template 是按 section 组织的配置模板。模板语法：
//
//	# Section 名
//	## 配置项说明
//	KEY=默认值
type Template struct {
	Order    []string                  `json:"order"`
	Sections map[string][]TemplateItem `json:"sections"`
}

// LoadTemplate 解析模板文件的分节结构。
func LoadTemplate(path string) (*Template, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置模板失败: %w", err)
	}
	defer f.Close()

	tpl := &Template{Sections: map[string][]TemplateItem{}}
	var currentSection, currentComment string

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, "## "):
			currentComment = line[3:]
		case strings.HasPrefix(line, "# "):
			currentSection = line[2:]
			if _, ok := tpl.Sections[currentSection]; !ok {
				tpl.Sections[currentSection] = nil
				tpl.Order = append(tpl.Order, currentSection)
			}
			currentComment = ""
		case strings.HasPrefix(line, "#"):
			currentComment = strings.TrimPrefix(line, "#")
		case strings.Contains(line, "="):
			key, _, _ := strings.Cut(line, "=")
			if currentSection != "" {
				tpl.Sections[currentSection] = append(tpl.Sections[currentSection], TemplateItem{
					Key:     strings.TrimSpace(key),
					Comment: currentComment,
				})
			}
			currentComment = ""
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("扫描配置模板失败: %w", err)
	}
	return tpl, nil
}

// FillValues 用用户配置文件中的实际取值填充模板。
func (t *Template) FillValues(envPath string) error {
	values, err := readEnvValues(envPath)
	if err != nil {
		return err
	}
	for section, items := range t.Sections {
		for i := range items {
			if v, ok := values[items[i].Key]; ok {
				items[i].Value = v
			}
		}
		t.Sections[section] = items
	}
	return nil
}

// readEnvValues 读取 env 文件的键值对；文件缺失返回空集合。
func readEnvValues(path string) (map[string]string, error) {
	values := map[string]string{}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return values, nil
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if key, value, ok := strings.Cut(line, "="); ok {
			values[strings.TrimSpace(key)] = strings.TrimSpace(value)
		}
	}
	return values, scanner.Err()
}

// WriteEnvFile 按模板结构把配置写回 env 文件，保持分节与注释格式，
// 使保存后的文件仍可被 LoadTemplate/FillValues 往返解析。
func WriteEnvFile(path string, tpl *Template) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("创建配置目录失败: %w", err)
	}

	var b strings.Builder
	for _, section := range tpl.Order {
		fmt.Fprintf(&b, "# %s\n", section)
		for _, item := range tpl.Sections[section] {
			fmt.Fprintf(&b, "## %s\n", item.Comment)
			fmt.Fprintf(&b, "%s=%s\n", item.Key, item.Value)
		}
		b.WriteString("\n")
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("写入配置文件失败: %w", err)
	}
	return nil
}
