package session

import (
	"errors"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/shouni/go-comic-story/pkg/domain"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// ErrNotFound はセッションが存在しない（期限切れを含む）ときのエラーなのだ。
var ErrNotFound = errors.New("セッションが見つかりません")

const defaultCleanupInterval = 15 * time.Minute

// Session は1人の利用者の画面状態なのだ。グローバルな状態は持たず、必ずこの値を受け渡します。
type Session struct {
	ID     string
	Mode   string
	Genre  string
	Prompt string
	Story  *domain.Story
	Images map[int]domain.PanelImage
	Saved  bool
	// Notice は直前の操作の結果メッセージで、次の表示で1回だけ使われるのだ。
	Notice    string
	UpdatedAt time.Time
}

// HasStory は表示できる物語を持っているか判定します。
func (s *Session) HasStory() bool {
	return s != nil && s.Story != nil && s.Story.Text != ""
}

// ReplaceStory は新しい物語で置き換え、以前の画像と保存済みフラグを捨てるのだ。
func (s *Session) ReplaceStory(story *domain.Story) {
	s.Story = story
	s.Images = map[int]domain.PanelImage{}
	s.Saved = false
}

// Reset は "new" 操作なのだ。ID はそのままで、入力と物語と画像を空に戻します。
func (s *Session) Reset() {
	*s = Session{
		ID:     s.ID,
		Images: map[int]domain.PanelImage{},
	}
}

// SetImage はパネル番号に画像を紐づけます。
func (s *Session) SetImage(img domain.PanelImage) {
	if s.Images == nil {
		s.Images = map[int]domain.PanelImage{}
	}
	s.Images[img.PanelIndex] = img
}

// ImageIndices は画像のあるパネル番号を昇順で返すのだ。
func (s *Session) ImageIndices() []int {
	out := make([]int, 0, len(s.Images))
	for i := range s.Images {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// Clone は呼び出し元同士でマップを共有しないようにコピーを作るのだ。
// Story は生成後に書き換えないので共有しても安全です。
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Images = maps.Clone(s.Images)
	if cp.Images == nil {
		cp.Images = map[int]domain.PanelImage{}
	}
	return &cp
}

// Store は go-cache を使ったセッションの置き場なのだ。アクセスのたびに有効期限が延びます。
// 同じセッションへの更新は Update で1つずつ順番に実行されるのだ。
type Store struct {
	cache *cache.Cache
	ttl   time.Duration
	locks sync.Map // セッション ID -> *sync.Mutex
}

// NewStore は指定の有効期限でセッションストアを作るのだ。
func NewStore(ttl time.Duration) *Store {
	st := &Store{
		cache: cache.New(ttl, defaultCleanupInterval),
		ttl:   ttl,
	}
	st.cache.OnEvicted(func(id string, _ any) { st.locks.Delete(id) })
	return st
}

func (st *Store) mutex(id string) *sync.Mutex {
	v, _ := st.locks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (st *Store) lock(id string) func() {
	mu := st.mutex(id)
	mu.Lock()
	return mu.Unlock
}

// Update は id のセッションを排他したまま読み出し、fn で書き換えて保存するのだ。
// fn がエラーを返したら保存せずにそのエラーを返します。
func (st *Store) Update(id string, fn func(*Session) error) (*Session, error) {
	unlock := st.lock(id)
	defer unlock()

	s, err := st.get(id, true)
	if err != nil {
		return nil, err
	}
	if err := fn(s); err != nil {
		return nil, err
	}
	st.put(s)
	return s.Clone(), nil
}

// New は空のセッションを作って登録します。
func (st *Store) New() *Session {
	s := &Session{
		ID:        uuid.NewString(),
		Images:    map[int]domain.PanelImage{},
		UpdatedAt: time.Now(),
	}
	st.cache.Set(s.ID, s.Clone(), st.ttl)
	return s
}

// Get はセッションのコピーを返すのだ。更新中のセッションでも待たずに直前の保存内容を返します。
func (st *Store) Get(id string) (*Session, error) {
	mu := st.mutex(id)
	if !mu.TryLock() {
		// 期限は実行中の更新が保存するときに延びるのだ
		return st.get(id, false)
	}
	defer mu.Unlock()
	s, err := st.get(id, true)
	if err != nil {
		// 知らない ID のロックは残さないのだ
		st.locks.Delete(id)
	}
	return s, err
}

func (st *Store) get(id string, touch bool) (*Session, error) {
	v, ok := st.cache.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	s, ok := v.(*Session)
	if !ok {
		return nil, ErrNotFound
	}
	if touch {
		// ロック中だけ期限を延ばすのだ。新しい値を古い値で上書きしないためです
		st.cache.Set(id, s, st.ttl)
	}
	return s.Clone(), nil
}

// GetOrNew は id のセッションを返し、無ければ新しく作るのだ。
func (st *Store) GetOrNew(id string) *Session {
	if id != "" {
		if s, err := st.Get(id); err == nil {
			return s
		}
	}
	return st.New()
}

// Put はセッションを保存します。
func (st *Store) Put(s *Session) {
	unlock := st.lock(s.ID)
	defer unlock()
	st.put(s)
}

func (st *Store) put(s *Session) {
	s.UpdatedAt = time.Now()
	st.cache.Set(s.ID, s.Clone(), st.ttl)
}

// Delete はセッションを破棄します。
func (st *Store) Delete(id string) {
	st.cache.Delete(id)
	st.locks.Delete(id)
}

// Count は有効なセッション数なのだ。
func (st *Store) Count() int {
	return st.cache.ItemCount()
}
