package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"mediassist/ml"
)

// ArtifactStore 模型与特征列文件成对存放于同一目录
type ArtifactStore struct {
	Dir         string
	ModelFile   string
	ColumnsFile string
}

func (s ArtifactStore) ModelPath() string {
	return filepath.Join(s.Dir, s.ModelFile)
}

func (s ArtifactStore) ColumnsPath() string {
	return filepath.Join(s.Dir, s.ColumnsFile)
}

// Save 先写入临时文件，再依次发布；列文件发布失败时恢复旧模型，磁盘上始终是成对的文件
func (s ArtifactStore) Save(schema *ml.FeatureSchema, model ml.TrainableClassifier) error {
	if schema == nil || model == nil {
		return errors.New("schema and model are required")
	}
	if schema.Len() != model.NumFeatures() {
		return fmt.Errorf("schema has %d columns but model expects %d features", schema.Len(), model.NumFeatures())
	}
	if err := ensureDir(s.Dir); err != nil {
		return err
	}

	modelTmp, err := tempPath(s.Dir, s.ModelFile)
	if err != nil {
		return err
	}
	columnsTmp, err := tempPath(s.Dir, s.ColumnsFile)
	if err != nil {
		os.Remove(modelTmp)
		return err
	}
	cleanup := func() {
		os.Remove(modelTmp)
		os.Remove(columnsTmp)
	}

	if err := model.Save(modelTmp); err != nil {
		cleanup()
		return fmt.Errorf("write model: %w", err)
	}
	if err := schema.Save(columnsTmp); err != nil {
		cleanup()
		return fmt.Errorf("write columns: %w", err)
	}

	backup, err := s.backupModel()
	if err != nil {
		cleanup()
		return fmt.Errorf("back up model: %w", err)
	}
	if err := os.Rename(modelTmp, s.ModelPath()); err != nil {
		cleanup()
		return errors.Join(fmt.Errorf("publish model: %w", err), s.restoreModel(backup))
	}
	if err := os.Rename(columnsTmp, s.ColumnsPath()); err != nil {
		os.Remove(columnsTmp)
		return errors.Join(fmt.Errorf("publish columns: %w", err), s.restoreModel(backup))
	}
	if backup != "" {
		os.Remove(backup)
	}
	return nil
}

// backupModel 将当前模型移到备份名，没有旧模型时返回空串
func (s ArtifactStore) backupModel() (string, error) {
	if _, err := os.Lstat(s.ModelPath()); errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	backup, err := tempPath(s.Dir, s.ModelFile+".bak")
	if err != nil {
		return "", err
	}
	if err := os.Rename(s.ModelPath(), backup); err != nil {
		os.Remove(backup)
		return "", err
	}
	return backup, nil
}

// restoreModel 撤销模型发布：有备份则放回，否则删除新模型
func (s ArtifactStore) restoreModel(backup string) error {
	if backup == "" {
		if err := os.Remove(s.ModelPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove new model: %w", err)
		}
		return nil
	}
	if err := os.Rename(backup, s.ModelPath()); err != nil {
		return fmt.Errorf("restore model from %s: %w", backup, err)
	}
	return nil
}

// Exists 两个文件是否都存在
func (s ArtifactStore) Exists() bool {
	for _, path := range []string{s.ModelPath(), s.ColumnsPath()} {
		if _, err := os.Stat(path); err != nil {
			return false
		}
	}
	return true
}

func tempPath(dir, name string) (string, error) {
	f, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return "", err
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// ensureDir 确保目录存在
func ensureDir(dir string) error {
	if dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
