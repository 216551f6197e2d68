package service

import (
	"context"

	"cpa-distribution-system/internal/models"
	"cpa-distribution-system/pkg/errors"
	"cpa-distribution-system/pkg/logger"
)

// ParticipantStore 层级树的持久化边界
type ParticipantStore interface {
	GetByParticipantID(ctx context.Context, participantID string) (*models.Participant, error)
	GetByParticipantIDs(ctx context.Context, participantIDs []string) ([]models.Participant, error)
	Create(ctx context.Context, participant *models.Participant) error
	GetDescendantsOf(ctx context.Context, participantID string) ([]models.Participant, error)
	ApplyPathUpdates(ctx context.Context, updates []models.ParticipantPathUpdate) error
	SetActive(ctx context.Context, participantID string, active bool) error
}

// UplineEntry 上线链中的一个节点，Level按与事件发起者的距离编号
type UplineEntry struct {
	ParticipantID string `json:"participant_id"`
	Level         int    `json:"level"`
}

type HierarchyService struct {
	store ParticipantStore
}

func NewHierarchyService(store ParticipantStore) *HierarchyService {
	return &HierarchyService{store: store}
}

// ResolveUpline 解析参与者的上线链，最近的祖先在前
// Level 1为事件发起者本人（不在返回结果中），Level 2为直接上级
// 非激活节点不出现在结果中，但层级编号按距离保留，链条不中断
func (s *HierarchyService) ResolveUpline(ctx context.Context, participantID string, maxLevels int) ([]UplineEntry, error) {
	node, err := s.store.GetByParticipantID(ctx, participantID)
	if err != nil {
		return nil, errors.New(errors.ErrHierarchy, "获取参与者节点失败", err)
	}
	if node == nil {
		return nil, errors.New(errors.ErrHierarchy, "参与者不存在: "+participantID, nil)
	}

	// 物化路径为根到自身，倒序去掉自身即为最近优先的祖先链
	ancestorIDs := make([]string, 0, len(node.Path))
	for i := len(node.Path) - 2; i >= 0; i-- {
		ancestorIDs = append(ancestorIDs, node.Path[i])
	}
	if maxLevels > 0 && len(ancestorIDs) > maxLevels-1 {
		ancestorIDs = ancestorIDs[:maxLevels-1]
	}
	if len(ancestorIDs) == 0 {
		return []UplineEntry{}, nil
	}

	ancestors, err := s.store.GetByParticipantIDs(ctx, ancestorIDs)
	if err != nil {
		return nil, errors.New(errors.ErrHierarchy, "获取上线节点失败", err)
	}
	active := make(map[string]bool, len(ancestors))
	for _, ancestor := range ancestors {
		active[ancestor.ParticipantID] = ancestor.Active
	}

	upline := make([]UplineEntry, 0, len(ancestorIDs))
	for idx, ancestorID := range ancestorIDs {
		if !active[ancestorID] {
			continue
		}
		upline = append(upline, UplineEntry{
			ParticipantID: ancestorID,
			Level:         idx + 2,
		})
	}
	return upline, nil
}

// ResolveDescendants 解析参与者的下线，仅用于只读展示
// Level编号与上线链对称：2为直接下级，随距离递增
func (s *HierarchyService) ResolveDescendants(ctx context.Context, participantID string, maxLevels int) ([]UplineEntry, error) {
	node, err := s.store.GetByParticipantID(ctx, participantID)
	if err != nil {
		return nil, errors.New(errors.ErrHierarchy, "获取参与者节点失败", err)
	}
	if node == nil {
		return nil, errors.New(errors.ErrHierarchy, "参与者不存在: "+participantID, nil)
	}

	descendants, err := s.store.GetDescendantsOf(ctx, participantID)
	if err != nil {
		return nil, errors.New(errors.ErrHierarchy, "获取下线节点失败", err)
	}

	result := make([]UplineEntry, 0, len(descendants))
	for _, descendant := range descendants {
		if !descendant.Active {
			continue
		}
		relativeLevel := descendant.Level - node.Level + 1
		if maxLevels > 0 && relativeLevel > maxLevels {
			continue
		}
		result = append(result, UplineEntry{
			ParticipantID: descendant.ParticipantID,
			Level:         relativeLevel,
		})
	}
	return result, nil
}

// UpsertParticipant 创建或移动参与者节点
// Level/Path始终由父节点重算，移动节点时级联重算全部后代
// 整个级联在同一事务内落库，要么全部一致要么全部失败
func (s *HierarchyService) UpsertParticipant(ctx context.Context, participantID string, parentID *string) (*models.Participant, error) {
	if participantID == "" {
		return nil, errors.New(errors.ErrInvalidInput, "参与者ID不能为空", nil)
	}
	if parentID != nil && *parentID == participantID {
		return nil, errors.New(errors.ErrHierarchyCycle, "参与者不能作为自己的父节点", nil)
	}

	node, err := s.store.GetByParticipantID(ctx, participantID)
	if err != nil {
		return nil, errors.New(errors.ErrHierarchy, "获取参与者节点失败", err)
	}

	var parent *models.Participant
	if parentID != nil {
		parent, err = s.store.GetByParticipantID(ctx, *parentID)
		if err != nil {
			return nil, errors.New(errors.ErrHierarchy, "获取父节点失败", err)
		}
		if parent == nil {
			return nil, errors.New(errors.ErrHierarchy, "父节点不存在: "+*parentID, nil)
		}
	}

	level, path := computeLevelPath(participantID, parent)

	if node == nil {
		created := &models.Participant{
			ParticipantID: participantID,
			ParentID:      parentID,
			Level:         level,
			Path:          path,
			Active:        true,
		}
		if err := s.store.Create(ctx, created); err != nil {
			return nil, errors.New(errors.ErrPersistence, "创建参与者节点失败", err)
		}
		logger.WithFields(map[string]interface{}{
			"participant_id": participantID,
			"level":          level,
		}).Info("参与者节点已创建")
		return created, nil
	}

	if sameParent(node.ParentID, parentID) {
		return node, nil
	}

	// 新父节点位于待移动节点的子树内会形成环
	if parent != nil && pathContains(parent.Path, participantID) {
		return nil, errors.New(errors.ErrHierarchyCycle, "不能将节点移动到其自身的下线: "+participantID, nil)
	}

	updates, err := s.cascadeUpdates(ctx, node, parentID, level, path)
	if err != nil {
		return nil, err
	}
	if err := s.store.ApplyPathUpdates(ctx, updates); err != nil {
		return nil, errors.New(errors.ErrPersistence, "应用层级重算失败", err)
	}

	logger.WithFields(map[string]interface{}{
		"participant_id": participantID,
		"new_level":      level,
		"updated_nodes":  len(updates),
	}).Info("参与者节点已移动")

	node.ParentID = parentID
	node.Level = level
	node.Path = path
	return node, nil
}

// DeactivateParticipant 停用节点，保留在树中供审计与链路延续
func (s *HierarchyService) DeactivateParticipant(ctx context.Context, participantID string) error {
	node, err := s.store.GetByParticipantID(ctx, participantID)
	if err != nil {
		return errors.New(errors.ErrHierarchy, "获取参与者节点失败", err)
	}
	if node == nil {
		return errors.New(errors.ErrHierarchy, "参与者不存在: "+participantID, nil)
	}
	if err := s.store.SetActive(ctx, participantID, false); err != nil {
		return errors.New(errors.ErrPersistence, "停用参与者节点失败", err)
	}
	return nil
}

// cascadeUpdates 计算移动节点及其全部后代的重算结果
// 后代按路径长度升序处理，保证父节点的新路径先于子节点可用
func (s *HierarchyService) cascadeUpdates(ctx context.Context, node *models.Participant, parentID *string, level int, path models.StringArray) ([]models.ParticipantPathUpdate, error) {
	descendants, err := s.store.GetDescendantsOf(ctx, node.ParticipantID)
	if err != nil {
		return nil, errors.New(errors.ErrHierarchy, "获取下线节点失败", err)
	}

	updates := make([]models.ParticipantPathUpdate, 0, len(descendants)+1)
	updates = append(updates, models.ParticipantPathUpdate{
		ParticipantID: node.ParticipantID,
		ParentID:      parentID,
		Level:         level,
		Path:          path,
	})

	newPaths := map[string]models.StringArray{node.ParticipantID: path}
	for _, descendant := range descendants {
		if descendant.ParentID == nil {
			return nil, errors.New(errors.ErrHierarchy, "后代节点缺少父指针: "+descendant.ParticipantID, nil)
		}
		parentPath, ok := newPaths[*descendant.ParentID]
		if !ok {
			return nil, errors.New(errors.ErrHierarchy, "后代节点的父路径尚未重算: "+descendant.ParticipantID, nil)
		}
		newPath := append(append(models.StringArray{}, parentPath...), descendant.ParticipantID)
		newPaths[descendant.ParticipantID] = newPath
		updates = append(updates, models.ParticipantPathUpdate{
			ParticipantID: descendant.ParticipantID,
			ParentID:      descendant.ParentID,
			Level:         len(newPath),
			Path:          newPath,
		})
	}
	return updates, nil
}

func computeLevelPath(participantID string, parent *models.Participant) (int, models.StringArray) {
	if parent == nil {
		return 1, models.StringArray{participantID}
	}
	path := append(append(models.StringArray{}, parent.Path...), participantID)
	return parent.Level + 1, path
}

func sameParent(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func pathContains(path models.StringArray, participantID string) bool {
	for _, id := range path {
		if id == participantID {
			return true
		}
	}
	return false
}
