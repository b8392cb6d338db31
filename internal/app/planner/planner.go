package planner

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/John-Robertt/fpvsession/internal/domain"
)

// ReadDayState 读取 <output>/<日目录>/ 下所有可解析的会话目录。
// 若日目录不存在，返回空状态且不报错。
func ReadDayState(output string, day time.Time) (domain.DayState, error) {
	dayDir := filepath.Join(output, domain.DayFolderName(day))
	st := domain.DayState{DayDir: dayDir}

	entries, err := os.ReadDir(dayDir)
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return domain.DayState{}, err
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		s, en, ok := domain.ParseSessionRange(e.Name(), day)
		if !ok {
			continue
		}
		st.Sessions = append(st.Sessions, domain.ExistingSession{Name: e.Name(), Start: s, End: en})
	}
	sort.Slice(st.Sessions, func(i, j int) bool { return st.Sessions[i].Name < st.Sessions[j].Name })
	return st, nil
}

// ReadSessionState 收集会话根目录与分类子目录中的现有文件名。
// 若目录不存在，返回空状态且不报错。
func ReadSessionState(dir string) (domain.SessionState, error) {
	st := domain.SessionState{Dir: dir, ExistingNames: map[string]struct{}{}}

	dirs := []string{dir}
	for _, c := range domain.Categories {
		dirs = append(dirs, filepath.Join(dir, string(c)))
	}
	for _, d := range dirs {
		entries, err := os.ReadDir(d)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return domain.SessionState{}, err
		}
		for _, e := range entries {
			if !e.IsDir() {
				st.ExistingNames[e.Name()] = struct{}{}
			}
		}
	}
	return st, nil
}

// Planner 为一次运行中的会话桶选择目标目录。
//
// 同一次运行内已规划的目录会被记住：dry-run 不落盘，但后续桶仍能复用它们。
type Planner struct {
	Output string

	days map[string]*domain.DayState
}

func New(output string) *Planner {
	return &Planner{Output: output, days: map[string]*domain.DayState{}}
}

// Plan 选择桶的会话目录：日目录下第一个（按名字）时间区间相交的会话目录被复用，
// 否则以桶的 [Start,End] 新建。
func (p *Planner) Plan(b domain.SessionBucket) (domain.SessionPlan, error) {
	dayName := domain.DayFolderName(b.Start)
	st, ok := p.days[dayName]
	if !ok {
		s, err := ReadDayState(p.Output, b.Start)
		if err != nil {
			return domain.SessionPlan{}, err
		}
		st = &s
		p.days[dayName] = st
	}

	plan := domain.SessionPlan{
		DayDir: st.DayDir,
		Day:    dayName,
		Start:  b.Start,
		End:    b.End,
	}
	for _, s := range st.Sessions {
		if domain.Overlaps(s.Start, s.End, b.Start, b.End) {
			plan.Folder = s.Name
			plan.Reused = true
			break
		}
	}
	if !plan.Reused {
		plan.Folder = domain.SessionFolderName(b.Start, b.End)
		st.Sessions = append(st.Sessions, domain.ExistingSession{Name: plan.Folder, Start: b.Start, End: b.End})
		sort.Slice(st.Sessions, func(i, j int) bool { return st.Sessions[i].Name < st.Sessions[j].Name })
	}
	plan.Dir = filepath.Join(st.DayDir, plan.Folder)

	ss, err := ReadSessionState(plan.Dir)
	if err != nil {
		return domain.SessionPlan{}, err
	}
	plan.Copies = PlanCopies(b.Members, ss)
	return plan, nil
}

// PlanCopies 为成员生成复制计划：会话目录中已有同名文件的标记为 Exists。
// 同一桶内重名的成员只复制第一个。
func PlanCopies(members []domain.FileRecord, st domain.SessionState) []domain.CopyPlan {
	used := make(map[string]struct{}, len(st.ExistingNames)+len(members))
	for n := range st.ExistingNames {
		used[n] = struct{}{}
	}

	out := make([]domain.CopyPlan, 0, len(members))
	for _, m := range members {
		_, exists := used[m.Name]
		used[m.Name] = struct{}{}
		out = append(out, domain.CopyPlan{Src: m, DstName: m.Name, Exists: exists})
	}
	return out
}
